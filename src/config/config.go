package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/node"
	"github.com/mosaicnetworks/nimona/src/object"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultCertFile is the default name of the file containing the TLS
	// certificate of the WAMP router.
	DefaultCertFile = "cert.pem"

	// DefaultCertKeyFile is the default name of the file containing the TLS
	// key of the WAMP router, when this node runs one.
	DefaultCertKeyFile = "key.pem"
)

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultBindAddr        = "127.0.0.1:1337"
	DefaultServiceAddr     = "127.0.0.1:8000"
	DefaultCodec           = string(object.JSONCodec)
	DefaultTCPTimeout      = 1000 * time.Millisecond
	DefaultRequestTimeout  = 2000 * time.Millisecond
	DefaultControlInterval = 1000 * time.Millisecond
	DefaultPendingTimeout  = time.Minute
	DefaultSubscriptionTTL = time.Hour
	DefaultCacheSize       = 10000
	DefaultMaxPool         = 2
	DefaultStore           = false
	DefaultRelay           = false
	DefaultRelayRate       = 10
	DefaultRelayBurst      = 20
	DefaultWAMPRealm       = "nimona"
	DefaultWAMPSkipVerify  = false
)

// Config contains all the configuration properties of a nimona node.
type Config struct {
	// DataDir is the top-level directory containing the configuration and
	// data of the node
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node accepts connections
	// from other peers. Use AdvertiseAddr when the bound address is not the
	// one peers should dial.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Codec is the wire codec of outgoing objects: json, cbor or msgpack.
	Codec string `mapstructure:"codec"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of a single round trip with a peer.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// RequestTimeout bounds requests whose response may come back through a
	// relay.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// ControlInterval is the period of the maintenance routine.
	ControlInterval time.Duration `mapstructure:"control-interval"`

	// PendingTimeout is how long objects with unknown parents are kept.
	PendingTimeout time.Duration `mapstructure:"pending-timeout"`

	// SubscriptionTTL is the lifetime of the subscriptions we make.
	SubscriptionTTL time.Duration `mapstructure:"subscription-ttl"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Passphrase, when set, encrypts the key file.
	Passphrase string `mapstructure:"passphrase"`

	// Relay makes the node forward envelopes for other peers.
	Relay bool `mapstructure:"relay"`

	// RelayRate is the number of forward requests per second accepted from a
	// single sender.
	RelayRate float64 `mapstructure:"relay-rate"`

	// RelayBurst is the burst allowed on top of RelayRate.
	RelayBurst int `mapstructure:"relay-burst"`

	// Relays are the public keys of the relays this node advertises. Their
	// connection info must be in the address book.
	Relays []string `mapstructure:"relays"`

	// WAMPServer is the websocket URL of a WAMP router. When set, the node
	// also registers itself on that router, so that peers, and relays in
	// particular, can reach it without dialing it.
	WAMPServer string `mapstructure:"wamp-server"`

	// WAMPRealm is the realm used on the WAMP router.
	WAMPRealm string `mapstructure:"wamp-realm"`

	// WAMPSkipVerify controls whether the WAMP client verifies the router's
	// certificate chain and host name. This should be used only for testing.
	WAMPSkipVerify bool `mapstructure:"wamp-skip-verify"`

	// WAMPListen is the address:port of the WAMP router this node runs. It is
	// usually set on relays. The router serves TLS when cert.pem and key.pem
	// are found in the datadir.
	WAMPListen string `mapstructure:"wamp-listen"`

	// Key is the private key of the node.
	Key keys.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		BindAddr:        DefaultBindAddr,
		ServiceAddr:     DefaultServiceAddr,
		Codec:           DefaultCodec,
		MaxPool:         DefaultMaxPool,
		TCPTimeout:      DefaultTCPTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		ControlInterval: DefaultControlInterval,
		PendingTimeout:  DefaultPendingTimeout,
		SubscriptionTTL: DefaultSubscriptionTTL,
		Store:           DefaultStore,
		DatabaseDir:     DefaultDatabaseDir(),
		CacheSize:       DefaultCacheSize,
		Relay:           DefaultRelay,
		RelayRate:       DefaultRelayRate,
		RelayBurst:      DefaultRelayBurst,
		WAMPRealm:       DefaultWAMPRealm,
		WAMPSkipVerify:  DefaultWAMPSkipVerify,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.ControlInterval = 50 * time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CertFile returns the full path of the file containing the WAMP router's
// TLS certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// CertKeyFile returns the full path of the file containing the WAMP router's
// TLS key.
func (c *Config) CertKeyFile() string {
	return filepath.Join(c.DataDir, DefaultCertKeyFile)
}

// WireCodec parses Codec.
func (c *Config) WireCodec() (object.Codec, error) {
	return object.ParseCodec(c.Codec)
}

// NodeConfig returns the configuration of the node component.
func (c *Config) NodeConfig() (*node.Config, error) {
	codec, err := c.WireCodec()
	if err != nil {
		return nil, err
	}

	conf := node.DefaultConfig()
	conf.ControlInterval = c.ControlInterval
	conf.RequestTimeout = c.RequestTimeout
	conf.PendingTimeout = c.PendingTimeout
	conf.SubscriptionTTL = c.SubscriptionTTL
	conf.Relay = c.Relay
	conf.RelayRate = c.RelayRate
	conf.RelayBurst = c.RelayBurst
	conf.WAMPFallback = c.WAMPListen != ""
	conf.Codec = codec
	conf.Moniker = c.Moniker
	conf.Logger = c.Logger()

	return conf, nil
}

// Logger returns a formatted logrus Entry, with prefix set to "nimona".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.Hooks.Add(fileHook(c.LogFile))
		}
	}
	return c.logger.WithField("prefix", "nimona")
}

func fileHook(path string) *lfshook.LfsHook {
	pathMap := lfshook.PathMap{}
	for _, l := range logrus.AllLevels {
		pathMap[l] = path
	}
	return lfshook.NewHook(pathMap, &logrus.JSONFormatter{})
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level nimona
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Nimona")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Nimona")
		} else {
			return filepath.Join(home, ".nimona")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
