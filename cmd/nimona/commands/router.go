package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/nimona/src/config"
	"github.com/mosaicnetworks/nimona/src/net/wamp"
)

var (
	routerListen   = "127.0.0.1:8443"
	routerRealm    = config.DefaultWAMPRealm
	routerCertFile string
	routerKeyFile  string
)

// NewRouterCmd produces a command that runs a standalone WAMP router, for
// relays that do not embed one.
func NewRouterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "WAMP router for peers that cannot accept connections",
		RunE:  runRouter,
	}

	cmd.Flags().StringVar(&routerListen, "listen", routerListen, "Listen IP:Port")
	cmd.Flags().StringVar(&routerRealm, "realm", routerRealm, "WAMP realm")
	cmd.Flags().StringVar(&routerCertFile, "cert-file", "", "TLS certificate")
	cmd.Flags().StringVar(&routerKeyFile, "key-file", "", "TLS key")

	return cmd
}

// runRouter starts the WAMP server and waits for a SIGINT or SIGTERM
func runRouter(cmd *cobra.Command, args []string) error {
	logger := _config.Nimona.Logger()

	server, err := wamp.NewServer(routerListen, routerRealm, routerCertFile, routerKeyFile, logger)
	if err != nil {
		return err
	}

	if err := server.Listen(); err != nil {
		return err
	}

	go func() {
		if err := server.Run(); err != nil {
			logger.WithError(err).Error("WAMP router stopped")
		}
	}()

	logger.WithField("url", server.URL()).Info("Serving WAMP router")

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh

	server.Shutdown()

	return nil
}
