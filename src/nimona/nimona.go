// Package nimona assembles a node from a configuration: key, store, address
// book, transports, node and HTTP service.
package nimona

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/config"
	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/net"
	"github.com/mosaicnetworks/nimona/src/net/wamp"
	"github.com/mosaicnetworks/nimona/src/node"
	"github.com/mosaicnetworks/nimona/src/peers"
	"github.com/mosaicnetworks/nimona/src/service"
	"github.com/mosaicnetworks/nimona/src/store"
)

// Nimona is a node together with the components it runs on.
type Nimona struct {
	Config      *config.Config
	Node        *node.Node
	Transport   net.Transport
	Store       store.Store
	AddressBook *peers.AddressBook
	Service     *service.Service
	WAMPServer  *wamp.Server

	shutdownOnce sync.Once
	logger       *logrus.Entry
}

// NewNimona ...
func NewNimona(c *config.Config) *Nimona {
	engine := &Nimona{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

func (n *Nimona) initKey() error {
	if n.Config.Key == nil {
		keyfile := keyfile(n.Config)

		privKey, err := keyfile.ReadKey()
		if err != nil {
			n.logger.WithError(err).Warn("Cannot read private key from file")

			privKey, err = Keygen(n.Config)
			if err != nil {
				n.logger.WithError(err).Error("Cannot generate a new private key")
				return err
			}

			n.logger.WithField("public_key", privKey.PublicKey()).Info("Created a new key")
		}

		n.Config.Key = privKey
	}
	return nil
}

func (n *Nimona) initStore() error {
	if !n.Config.Store {
		n.Store = store.NewInmemStore()

		n.logger.Debug("created new in-mem store")
	} else {
		n.logger.WithField("path", n.Config.DatabaseDir).Debug("Attempting to load or create database")

		s, err := store.NewBadgerStore(n.Config.CacheSize, n.Config.DatabaseDir)
		if err != nil {
			return err
		}
		n.Store = s
	}

	return nil
}

func (n *Nimona) initPeers() error {
	if n.AddressBook != nil {
		return nil
	}

	book, err := peers.LoadAddressBook(peers.NewJSONAddressBook(n.Config.DataDir))
	if err != nil {
		return err
	}

	n.logger.WithField("peers", book.Len()).Debug("Loaded address book")

	n.AddressBook = book

	return nil
}

func (n *Nimona) initTransport() error {
	codec, err := n.Config.WireCodec()
	if err != nil {
		return err
	}

	tcp, err := net.NewTCPTransport(
		n.Config.BindAddr,
		n.Config.AdvertiseAddr,
		n.Config.MaxPool,
		n.Config.TCPTimeout,
		codec,
		n.logger,
	)
	if err != nil {
		return err
	}

	mux := net.NewMuxTransport(tcp)
	n.Transport = mux

	pubKey := n.Config.Key.PublicKey().String()

	switch {
	case n.Config.WAMPListen != "":
		// relays run the router their WAMP peers connect to
		var certFile, keyFile string
		if fileExists(n.Config.CertFile()) && fileExists(n.Config.CertKeyFile()) {
			certFile, keyFile = n.Config.CertFile(), n.Config.CertKeyFile()
		}

		server, err := wamp.NewServer(n.Config.WAMPListen, n.Config.WAMPRealm, certFile, keyFile, n.logger)
		if err != nil {
			return err
		}
		if err := server.Listen(); err != nil {
			return err
		}
		n.WAMPServer = server

		local, err := wamp.NewLocalTransport(server.Router(), n.Config.WAMPRealm, pubKey, n.Config.TCPTimeout, codec, n.logger)
		if err != nil {
			return err
		}
		mux.Register(wamp.Scheme, local)

	case n.Config.WAMPServer != "":
		var caFile string
		if fileExists(n.Config.CertFile()) {
			caFile = n.Config.CertFile()
		}

		wt, err := wamp.NewTransport(
			n.Config.WAMPServer,
			n.Config.WAMPRealm,
			pubKey,
			caFile,
			n.Config.WAMPSkipVerify,
			n.Config.TCPTimeout,
			codec,
			n.logger,
		)
		if err != nil {
			return err
		}
		mux.Register(wamp.Scheme, wt)
	}

	return nil
}

func (n *Nimona) initNode() error {
	conf, err := n.Config.NodeConfig()
	if err != nil {
		return err
	}

	for _, r := range n.Config.Relays {
		key, err := keys.ParsePublicKey(r)
		if err != nil {
			return fmt.Errorf("relay %s: %v", r, err)
		}
		info, ok := n.AddressBook.Get(key)
		if !ok {
			return fmt.Errorf("relay %s is not in the address book", r)
		}
		conf.Relays = append(conf.Relays, info)
	}

	n.logger.WithFields(logrus.Fields{
		"public_key": n.Config.Key.PublicKey(),
		"relays":     len(conf.Relays),
		"relay":      conf.Relay,
	}).Debug("Creating node")

	n.Node = node.NewNode(
		conf,
		n.Config.Key,
		n.AddressBook,
		n.Store,
		n.Transport,
	)

	if err := n.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (n *Nimona) initService() error {
	if !n.Config.NoService {
		n.Service = service.NewService(n.Config.ServiceAddr, n.Node, n.logger)
	}
	return nil
}

// Init creates every component. Components already set on the engine, such
// as the address book, are kept.
func (n *Nimona) Init() error {
	if err := n.initKey(); err != nil {
		return err
	}

	if err := n.initPeers(); err != nil {
		return err
	}

	if err := n.initStore(); err != nil {
		return err
	}

	if err := n.initTransport(); err != nil {
		return err
	}

	if err := n.initNode(); err != nil {
		return err
	}

	if err := n.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the WAMP router and the service, if any, and runs the node
// until Shutdown.
func (n *Nimona) Run() {
	if n.WAMPServer != nil {
		go func() {
			if err := n.WAMPServer.Run(); err != nil {
				n.logger.WithError(err).Error("WAMP router stopped")
			}
		}()
	}

	if n.Service != nil {
		go func() {
			if err := n.Service.Serve(); err != nil {
				n.logger.WithError(err).Error("Service stopped")
			}
		}()
	}

	n.Node.Run()
}

// Shutdown stops the node and the components it runs on.
func (n *Nimona) Shutdown() {
	n.shutdownOnce.Do(n.shutdown)
}

func (n *Nimona) shutdown() {
	if n.Node != nil {
		n.Node.Shutdown()
	} else if n.Transport != nil {
		n.Transport.Close()
	}
	if n.Service != nil {
		n.Service.Close()
	}
	if n.WAMPServer != nil {
		n.WAMPServer.Shutdown()
	}
	if n.Store != nil {
		if err := n.Store.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	}
}

func keyfile(c *config.Config) *keys.SimpleKeyfile {
	if c.Passphrase != "" {
		return keys.NewEncryptedKeyfile(c.Keyfile(), c.Passphrase)
	}
	return keys.NewSimpleKeyfile(c.Keyfile())
}

// Keygen creates a new key in the key file of the configuration. It refuses
// to overwrite an existing key.
func Keygen(c *config.Config) (keys.PrivateKey, error) {
	kf := keyfile(c)

	if _, err := kf.ReadKey(); err == nil {
		return nil, fmt.Errorf("Another key already lives under %s", c.DataDir)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := kf.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
