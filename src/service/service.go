package service

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/node"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/peers"
)

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	registry    *prometheus.Registry
	router      chi.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		registry:    prometheus.NewRegistry(),
		logger:      logger,
	}

	service.registerCollectors()
	service.registerHandlers()

	return &service
}

func (s *Service) registerCollectors() {
	s.registry.MustRegister(s.node.Metrics().Collectors()...)

	gauge := func(name, help string, f func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "nimona",
			Name:      name,
			Help:      help,
		}, f)
	}

	s.registry.MustRegister(
		gauge("streams", "Streams known to the node.", func() float64 {
			return float64(len(s.node.Streams().Streams()))
		}),
		gauge("pending_objects", "Objects waiting for their parents.", func() float64 {
			return float64(s.node.Streams().PendingCount())
		}),
		gauge("peers", "Peers in the address book.", func() float64 {
			return float64(s.node.AddressBook().Len())
		}),
		gauge("relay_forwarded", "Envelopes forwarded for other peers.", func() float64 {
			return float64(s.node.RelayStats().Forwarded)
		}),
		gauge("sync_rate", "Share of syncs that succeeded.", s.node.SyncRate),
	)
}

// registerHandlers builds the router of the API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering nimona API handlers")

	r := chi.NewRouter()
	r.Get("/stats", s.makeHandler(s.GetStats))
	r.Get("/streams", s.makeHandler(s.GetStreams))
	r.Get("/streams/{root}", s.makeHandler(s.GetStream))
	r.Get("/objects/{cid}", s.makeHandler(s.GetObject))
	r.Get("/peers", s.makeHandler(s.GetPeers))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router = r
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the router of the API, for embedding in another server.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve listens on the bind address and serves the API. This is a blocking
// call; it returns nil after Close.
func (s *Service) Serve() error {
	l, err := net.Listen("tcp", s.bindAddress)
	if err != nil {
		return err
	}
	return s.ServeListener(l)
}

// ServeListener serves the API on l.
func (s *Service) ServeListener(l net.Listener) error {
	s.Lock()
	s.server = &http.Server{Handler: s.router}
	server := s.server
	s.Unlock()

	s.logger.WithField("bind_address", l.Addr().String()).Debug("Serving nimona API")

	err := server.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops the server started by Serve.
func (s *Service) Close() error {
	s.Lock()
	defer s.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// StreamInfo summarizes a stream.
type StreamInfo struct {
	Root    string   `json:"root"`
	Type    string   `json:"type"`
	Owner   string   `json:"owner,omitempty"`
	Objects int      `json:"objects"`
	Leaves  []string `json:"leaves"`
	Pending []string `json:"pending,omitempty"`
	Order   []string `json:"order,omitempty"`
}

// GetStreams lists the streams known to the node.
func (s *Service) GetStreams(w http.ResponseWriter, r *http.Request) {
	res := []StreamInfo{}
	for _, root := range s.node.Streams().Streams() {
		g, ok := s.node.Streams().Get(root)
		if !ok {
			continue
		}
		res = append(res, StreamInfo{
			Root:    root.String(),
			Type:    g.Root().Type,
			Owner:   g.Owner().String(),
			Objects: g.Len(),
			Leaves:  cidStrings(g.Leaves()),
		})
	}
	writeJSON(w, res)
}

// GetStream returns a stream with its objects in linearized order.
func (s *Service) GetStream(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "root")

	root, err := object.ParseCID(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing root parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, ok := s.node.Streams().Get(root)
	if !ok {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}

	writeJSON(w, StreamInfo{
		Root:    root.String(),
		Type:    g.Root().Type,
		Owner:   g.Owner().String(),
		Objects: g.Len(),
		Leaves:  cidStrings(g.Leaves()),
		Pending: cidStrings(g.Pending()),
		Order:   cidStrings(g.LinearizedCIDs()),
	})
}

// GetObject returns a stored object.
func (s *Service) GetObject(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "cid")

	cid, err := object.ParseCID(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing cid parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := s.node.Streams().GetObject(cid)
	if err != nil {
		status := http.StatusInternalServerError
		if common.IsStore(err, common.KeyNotFound) {
			status = http.StatusNotFound
		} else {
			s.logger.WithError(err).Errorf("Retrieving object %s", cid)
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, o)
}

// PeerInfo is the JSON form of a ConnectionInfo.
type PeerInfo struct {
	PublicKey string   `json:"public_key"`
	Moniker   string   `json:"moniker,omitempty"`
	Addresses []string `json:"addresses"`
	Relays    []string `json:"relays,omitempty"`
}

// GetPeers lists the address book.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	infos := s.node.AddressBook().All()

	res := make([]PeerInfo, 0, len(infos))
	for _, info := range infos {
		res = append(res, peerInfo(info))
	}
	writeJSON(w, res)
}

func peerInfo(info *peers.ConnectionInfo) PeerInfo {
	p := PeerInfo{
		PublicKey: info.PublicKey.String(),
		Moniker:   info.Moniker,
		Addresses: info.Addresses,
	}
	for _, r := range info.Relays {
		p.Relays = append(p.Relays, r.PublicKey.String())
	}
	return p
}

func cidStrings(cids []object.CID) []string {
	res := make([]string, len(cids))
	for i, c := range cids {
		res[i] = c.String()
	}
	return res
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
