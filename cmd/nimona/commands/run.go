package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/nimona/src/nimona"
)

//NewRunCmd returns the command that starts a nimona node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNimona,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNimona(cmd *cobra.Command, args []string) error {
	engine := nimona.NewNimona(&_config.Nimona)

	if err := engine.Init(); err != nil {
		_config.Nimona.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		engine.Shutdown()
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Nimona.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Nimona.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Nimona.LogFile, "Also write logs to this file")
	cmd.Flags().String("moniker", _config.Nimona.Moniker, "Optional name")
	cmd.Flags().String("passphrase", _config.Nimona.Passphrase, "Passphrase of the key file")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Nimona.BindAddr, "Listen IP:Port for nimona node")
	cmd.Flags().StringP("advertise", "a", _config.Nimona.AdvertiseAddr, "Advertise IP:Port for nimona node")
	cmd.Flags().DurationP("timeout", "t", _config.Nimona.TCPTimeout, "TCP Timeout")
	cmd.Flags().Duration("request-timeout", _config.Nimona.RequestTimeout, "Timeout of requests, relayed ones included")
	cmd.Flags().Int("max-pool", _config.Nimona.MaxPool, "Connection pool size max")
	cmd.Flags().String("codec", _config.Nimona.Codec, "Wire codec: json, cbor or msgpack")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Nimona.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.Nimona.NoService, "Disable HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Nimona.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Nimona.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.Nimona.CacheSize, "Number of items in LRU caches")

	// Node configuration
	cmd.Flags().Duration("control-interval", _config.Nimona.ControlInterval, "Time between maintenance rounds")
	cmd.Flags().Duration("pending-timeout", _config.Nimona.PendingTimeout, "How long objects with unknown parents are kept")
	cmd.Flags().Duration("subscription-ttl", _config.Nimona.SubscriptionTTL, "Lifetime of subscriptions")

	// Relay
	cmd.Flags().Bool("relay", _config.Nimona.Relay, "Forward envelopes for other peers")
	cmd.Flags().Float64("relay-rate", _config.Nimona.RelayRate, "Forward requests per second accepted from one sender")
	cmd.Flags().Int("relay-burst", _config.Nimona.RelayBurst, "Burst of forward requests accepted from one sender")
	cmd.Flags().StringSlice("relays", _config.Nimona.Relays, "Public keys of the relays to advertise")

	// WAMP
	cmd.Flags().String("wamp-server", _config.Nimona.WAMPServer, "URL of the WAMP router to register on")
	cmd.Flags().String("wamp-realm", _config.Nimona.WAMPRealm, "WAMP realm")
	cmd.Flags().Bool("wamp-skip-verify", _config.Nimona.WAMPSkipVerify, "Skip verification of the WAMP router certificate")
	cmd.Flags().String("wamp-listen", _config.Nimona.WAMPListen, "Listen IP:Port for an embedded WAMP router")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Nimona.SetDataDir(_config.Nimona.DataDir)

	logFields := logrus.Fields{
		"nimona.DataDir":         _config.Nimona.DataDir,
		"nimona.BindAddr":        _config.Nimona.BindAddr,
		"nimona.AdvertiseAddr":   _config.Nimona.AdvertiseAddr,
		"nimona.ServiceAddr":     _config.Nimona.ServiceAddr,
		"nimona.NoService":       _config.Nimona.NoService,
		"nimona.Codec":           _config.Nimona.Codec,
		"nimona.MaxPool":         _config.Nimona.MaxPool,
		"nimona.Store":           _config.Nimona.Store,
		"nimona.LogLevel":        _config.Nimona.LogLevel,
		"nimona.Moniker":         _config.Nimona.Moniker,
		"nimona.TCPTimeout":      _config.Nimona.TCPTimeout,
		"nimona.RequestTimeout":  _config.Nimona.RequestTimeout,
		"nimona.ControlInterval": _config.Nimona.ControlInterval,
		"nimona.Relay":           _config.Nimona.Relay,
		"nimona.Relays":          _config.Nimona.Relays,
		"nimona.WAMPServer":      _config.Nimona.WAMPServer,
		"nimona.WAMPListen":      _config.Nimona.WAMPListen,
	}

	if _config.Nimona.Store {
		logFields["nimona.DatabaseDir"] = _config.Nimona.DatabaseDir
		logFields["nimona.CacheSize"] = _config.Nimona.CacheSize
	}

	_config.Nimona.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/nimona.toml (.json, .yaml also work)
	viper.SetConfigName("nimona")               // name of config file (without extension)
	viper.AddConfigPath(_config.Nimona.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Nimona.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Nimona.Logger().Debugf("No config file found in: %s", _config.Nimona.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
