package wamp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// Server implements a WAMP server through which connected clients can make RPC
// requests to one-another.
type Server struct {
	address    string
	router     router.Router
	httpServer *http.Server
	tls        bool
	logger     *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
}

// NewServer instantiates a new Server which can be run at a specified address.
// When certFile and keyFile are both set the server only accepts TLS
// connections.
func NewServer(address string,
	realm string,
	certFile string,
	keyFile string,
	logger *logrus.Entry) (*Server, error) {

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	// Create router instance.
	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, logger)
	if err != nil {
		return nil, err
	}

	wss := router.NewWebsocketServer(nxr)

	httpServer := &http.Server{
		Handler: wss,
		Addr:    address,
	}

	res := &Server{
		address:    address,
		router:     nxr,
		httpServer: httpServer,
		logger:     logger,
	}

	if certFile != "" && keyFile != "" {
		// prepare tls config with certFile and keyFile
		tlscfg := &tls.Config{}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			nxr.Close()
			return nil, fmt.Errorf("error loading X509 key pair: %s", err)
		}
		tlscfg.Certificates = append(tlscfg.Certificates, cert)
		httpServer.TLSConfig = tlscfg
		res.tls = true
	}

	return res, nil
}

// Listen binds the address of the server. Run calls it when it was not
// called before.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	l, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.listener = l
	s.address = l.Addr().String()
	return nil
}

// Run starts the WAMP websocket server
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		s.logger.WithError(err).Error("Run")
		return err
	}

	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	var err error
	if s.tls {
		// The call to ServeTLS has empty arguments because the certificates
		// have already been loaded in the TLSConfig of the server in the
		// constructor
		err = s.httpServer.ServeTLS(l, "", "")
	} else {
		err = s.httpServer.Serve(l)
	}
	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
		return err
	}
	return nil
}

// Shutdown stops the websocket server, and the wamp router
func (s *Server) Shutdown() {
	defer s.router.Close()

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutting down http server")
	}

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
}

// Addr returns the address of the server
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// URL returns the websocket URL clients connect to.
func (s *Server) URL() string {
	if s.tls {
		return fmt.Sprintf("wss://%s", s.Addr())
	}
	return fmt.Sprintf("ws://%s", s.Addr())
}

// Router returns the WAMP router, which in-process clients can connect to
// directly.
func (s *Server) Router() router.Router {
	return s.router
}
