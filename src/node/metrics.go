package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by a node. They are not
// registered anywhere; the HTTP service registers them with its registry.
type Metrics struct {
	ObjectsReceived *prometheus.CounterVec
	ObjectsApplied  prometheus.Counter
	Syncs           *prometheus.CounterVec
	Announcements   prometheus.Counter
	Sends           *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		ObjectsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimona",
			Name:      "objects_received_total",
			Help:      "Objects received from the transport, by type.",
		}, []string{"type"}),
		ObjectsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nimona",
			Name:      "objects_applied_total",
			Help:      "Stream objects applied after a sync.",
		}),
		Syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimona",
			Name:      "syncs_total",
			Help:      "Stream syncs, by result.",
		}, []string{"result"}),
		Announcements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nimona",
			Name:      "announcements_sent_total",
			Help:      "Announcements sent to subscribers.",
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimona",
			Name:      "sends_total",
			Help:      "Objects sent to peers, by route.",
		}, []string{"route"}),
	}
}

// Collectors returns every collector of the node.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ObjectsReceived,
		m.ObjectsApplied,
		m.Syncs,
		m.Announcements,
		m.Sends,
	}
}
