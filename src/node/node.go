package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/net"
	"github.com/mosaicnetworks/nimona/src/net/wamp"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/peers"
	"github.com/mosaicnetworks/nimona/src/relay"
	"github.com/mosaicnetworks/nimona/src/store"
	"github.com/mosaicnetworks/nimona/src/stream"
)

var (
	// ErrNoAddress is returned when a peer has no known address.
	ErrNoAddress = errors.New("no address for peer")
	// ErrObjectUnavailable is returned when a peer does not serve an object.
	ErrObjectUnavailable = errors.New("object unavailable")
	// ErrNoProvider is returned when no peer is known to hold a stream.
	ErrNoProvider = errors.New("no provider for stream")
)

// addresser is implemented by transports listening on several addresses.
type addresser interface {
	Addresses() []string
}

//Node defines a nimona node
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	key  keys.PrivateKey
	book *peers.AddressBook

	streams       *stream.Manager
	subscriptions *stream.Subscriptions

	selectorLock sync.Mutex
	selectors    map[object.CID]*RandomPeerSelector

	trans net.Transport
	netCh <-chan net.RPC

	relayServer *relay.Server
	relayClient *relay.Client
	promises    *promises

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	controlTimer *ControlTimer

	metrics *Metrics

	start        time.Time
	syncRequests uint64
	syncErrors   uint64
}

//NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	key keys.PrivateKey,
	book *peers.AddressBook,
	st store.Store,
	trans net.Transport,
) *Node {
	if conf.Logger == nil {
		conf.Logger = logrus.NewEntry(logrus.New())
	}
	if book == nil {
		book = peers.NewAddressBook(nil)
	}

	logger := conf.Logger.WithField("this_id", key.PublicKey().String())

	node := &Node{
		conf:          conf,
		logger:        logger,
		key:           key,
		book:          book,
		streams:       stream.NewManager(st, conf.PendingTimeout, logger),
		subscriptions: stream.NewSubscriptions(),
		selectors:     map[object.CID]*RandomPeerSelector{},
		trans:         trans,
		netCh:         trans.Consumer(),
		promises:      newPromises(),
		shutdownCh:    make(chan struct{}),
		controlTimer:  NewRandomControlTimer(),
		metrics:       newMetrics(),
	}

	deliverer := relay.DelivererFunc(node.sendDirect)

	node.relayServer = relay.NewServer(
		key,
		deliverer,
		rate.Limit(conf.RelayRate),
		conf.RelayBurst,
		logger.WithField("component", "relay-server"),
	)

	node.relayClient = relay.NewClient(
		key,
		conf.Codec,
		deliverer,
		conf.RequestTimeout,
		logger.WithField("component", "relay-client"),
	)

	return node
}

//Init loads the streams found in the store
func (n *Node) Init() error {
	if err := n.streams.Load(); err != nil {
		return fmt.Errorf("failed to load streams: %s", err)
	}

	for _, r := range n.conf.Relays {
		n.learn(r)
	}

	n.logger.WithField("streams", len(n.streams.Streams())).Debug("Init")

	return nil
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")

	go n.Run()
}

//Run invokes the main loop of the node
func (n *Node) Run() {
	if n.getState() != Initialising {
		return
	}
	n.setState(Running)
	n.start = time.Now()

	go n.trans.Listen()
	go n.controlTimer.Run(n.conf.ControlInterval)

	for {
		select {
		case rpc := <-n.netCh:
			ok := n.goFunc(func() {
				n.processRPC(rpc)
			})
			if !ok {
				n.logger.Warn("Too many concurrent requests, rejecting RPC")
				rpc.Respond(nil, fmt.Errorf("node busy"))
			}
		case <-n.controlTimer.tickCh:
			n.maintenance()
			n.controlTimer.Reset(n.conf.ControlInterval)
		case <-n.shutdownCh:
			return
		}
	}
}

// maintenance expires pending objects and subscriptions, and re-syncs the
// streams we subscribed to.
func (n *Node) maintenance() {
	now := time.Now()

	if expired := n.streams.ExpirePending(now); expired > 0 {
		n.logger.WithField("objects", expired).Debug("Expired pending objects")
	}

	if pruned := n.subscriptions.Prune(now); pruned > 0 {
		n.logger.WithField("subscriptions", pruned).Debug("Pruned subscriptions")
	}

	for root, provider := range n.nextProviders() {
		root, provider := root, provider
		n.goFunc(func() {
			ctx, cancel := n.requestContext(context.Background())
			defer cancel()
			if _, err := n.Sync(ctx, root, provider); err != nil {
				n.logger.WithError(err).WithField("stream", root).Debug("Periodic sync failed")
			}
		})
	}

	n.logStats()
}

//Shutdown shuts down the node
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.controlTimer.Shutdown()

		//transport is closed first so that running routines blocked on the
		//network return
		n.trans.Close()

		n.waitRoutines()
	})
}

// PublicKey returns the public key of the node.
func (n *Node) PublicKey() keys.PublicKey {
	return n.key.PublicKey()
}

// Addresses returns the addresses the node advertises.
func (n *Node) Addresses() []string {
	if a, ok := n.trans.(addresser); ok {
		return a.Addresses()
	}
	if addr := n.trans.AdvertiseAddr(); addr != "" {
		return []string{addr}
	}
	return nil
}

// ConnectionInfo returns the connection info of the node.
func (n *Node) ConnectionInfo() *peers.ConnectionInfo {
	info := peers.NewConnectionInfo(n.key.PublicKey(), n.Addresses()...)
	info.Moniker = n.conf.Moniker
	for _, r := range n.conf.Relays {
		info.Relays = append(info.Relays, r.Copy())
	}
	return info
}

// AddressBook returns the address book of the node.
func (n *Node) AddressBook() *peers.AddressBook {
	return n.book
}

// Streams returns the stream manager of the node.
func (n *Node) Streams() *stream.Manager {
	return n.streams
}

// Metrics returns the prometheus collectors of the node.
func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// RelayStats returns the counters of the relay server.
func (n *Node) RelayStats() relay.ServerStats {
	return n.relayServer.Stats()
}

// learn records the connection info of a peer unless we already know better.
func (n *Node) learn(info *peers.ConnectionInfo) {
	if info == nil || info.PublicKey.IsEmpty() || info.PublicKey.Equals(n.key.PublicKey()) {
		return
	}
	if _, ok := n.book.Get(info.PublicKey); ok {
		return
	}
	if err := n.book.Put(info); err != nil {
		n.logger.WithError(err).Warn("Saving peer")
	}
}

func (n *Node) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.conf.RequestTimeout > 0 {
		return context.WithTimeout(ctx, n.conf.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Duration(0)
	if !n.start.IsZero() {
		timeElapsed = time.Since(n.start)
	}

	objects := 0
	streams := n.streams.Streams()
	for _, r := range streams {
		if g, ok := n.streams.Get(r); ok {
			objects += g.Len()
		}
	}

	relayStats := n.relayServer.Stats()

	s := map[string]string{
		"id":                    n.key.PublicKey().String(),
		"moniker":               n.conf.Moniker,
		"state":                 n.getState().String(),
		"uptime":                timeElapsed.Truncate(time.Second).String(),
		"streams":               strconv.Itoa(len(streams)),
		"objects":               strconv.Itoa(objects),
		"pending_objects":       strconv.Itoa(n.streams.PendingCount()),
		"subscriptions":         strconv.Itoa(n.subscriptions.Len()),
		"num_peers":             strconv.Itoa(n.book.Len()),
		"sync_rate":             strconv.FormatFloat(n.SyncRate(), 'f', 2, 64),
		"relay":                 strconv.FormatBool(n.conf.Relay),
		"relay_forwarded":       strconv.FormatUint(relayStats.Forwarded, 10),
		"relay_failed":          strconv.FormatUint(relayStats.Failed, 10),
		"relay_dropped":         strconv.FormatUint(relayStats.Dropped, 10),
		"relay_rate_limited":    strconv.FormatUint(relayStats.RateLimited, 10),
		"relay_waiting":         strconv.Itoa(n.relayClient.Waiting()),
		"pending_relay_replies": strconv.Itoa(n.promises.len()),
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	fields := logrus.Fields{}
	for k, v := range stats {
		fields[k] = v
	}
	n.logger.WithFields(fields).Debug("Stats")
}

//SyncRate returns the share of syncs that succeeded
func (n *Node) SyncRate() float64 {
	var syncErrorRate float64

	requests := atomic.LoadUint64(&n.syncRequests)
	if requests != 0 {
		syncErrorRate = float64(atomic.LoadUint64(&n.syncErrors)) / float64(requests)
	}

	return 1 - syncErrorRate
}

// addresses returns where to reach a peer directly.
func (n *Node) addresses(to keys.PublicKey) []string {
	var res []string
	if info, ok := n.book.Get(to); ok {
		res = append(res, info.Addresses...)
	}
	if n.conf.WAMPFallback {
		addr := wamp.Address(to.String())
		found := false
		for _, a := range res {
			if a == addr {
				found = true
				break
			}
		}
		if !found {
			res = append(res, addr)
		}
	}
	return res
}
