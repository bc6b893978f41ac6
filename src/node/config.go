package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/peers"
)

// Config holds the settings of a Node.
type Config struct {
	// ControlInterval is the period of the maintenance timer.
	ControlInterval time.Duration `mapstructure:"heartbeat"`

	// RequestTimeout bounds requests sent to other peers, including those
	// going through relays.
	RequestTimeout time.Duration `mapstructure:"timeout"`

	// PendingTimeout is how long objects with missing parents are kept.
	PendingTimeout time.Duration `mapstructure:"pending-timeout"`

	// SubscriptionTTL is the lifetime of the subscriptions the node sends.
	SubscriptionTTL time.Duration `mapstructure:"subscription-ttl"`

	// Relay enables forwarding envelopes for other peers.
	Relay bool `mapstructure:"relay"`

	// RelayRate and RelayBurst throttle each sender of forward requests. A
	// zero rate disables throttling.
	RelayRate  float64 `mapstructure:"relay-rate"`
	RelayBurst int     `mapstructure:"relay-burst"`

	// Relays are advertised in the connection info of the node.
	Relays []*peers.ConnectionInfo

	// WAMPFallback makes the node try the WAMP address of peers, derived from
	// their public key, after their known addresses.
	WAMPFallback bool `mapstructure:"wamp-fallback"`

	// Codec encodes the payload of envelopes.
	Codec object.Codec `mapstructure:"codec"`

	// Moniker is the friendly name advertised in the connection info.
	Moniker string `mapstructure:"moniker"`

	Logger *logrus.Entry
}

// DefaultConfig returns the default node configuration.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		ControlInterval: time.Second,
		RequestTimeout:  2 * time.Second,
		PendingTimeout:  time.Minute,
		SubscriptionTTL: time.Hour,
		RelayRate:       10,
		RelayBurst:      20,
		Codec:           object.JSONCodec,
		Logger:          logrus.NewEntry(logger),
	}
}

// TestConfig returns a configuration suited to tests, with logs routed to t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.ControlInterval = 50 * time.Millisecond
	config.RequestTimeout = time.Second
	config.Logger = common.NewTestEntry(t, common.TestLogLevel)
	return config
}
