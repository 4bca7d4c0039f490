// Package metrics instruments the node runtime with Prometheus
// collectors, grounded on estuary-flow's go/network/metrics.go
// (promauto.NewCounterVec per network event). The node never serves an
// HTTP endpoint -- it only ever speaks the Maelstrom stdio protocol --
// so these collectors live behind a per-Runtime prometheus.Registry
// rather than a promhttp handler nobody would ever scrape. The Runtime
// keeps its Set in an unexported field.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every collector a single node instance owns, registered
// against its own Registry so that multiple in-process test nodes don't
// collide on the global default registerer.
type Set struct {
	Registry *prometheus.Registry

	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	MessagesDropped  prometheus.Counter
	GossipRoundsSent     prometheus.Counter
	GossipRoundsSkipped  prometheus.Counter
	PendingRPCTableSize  prometheus.Gauge
}

// NewSet builds a fresh, independently-registered collector set.
func NewSet(nodeID string) *Set {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"node": nodeID}

	s := &Set{
		Registry: reg,
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mael_messages_sent_total",
			Help:        "Number of envelopes written to stdout.",
			ConstLabels: constLabels,
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mael_messages_received_total",
			Help:        "Number of envelopes read from stdin.",
			ConstLabels: constLabels,
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mael_messages_dropped_total",
			Help:        "Number of inbound envelopes that could not be routed (NoHandler/NoCallback).",
			ConstLabels: constLabels,
		}),
		GossipRoundsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mael_gossip_rounds_sent_total",
			Help:        "Number of per-peer gossip messages emitted.",
			ConstLabels: constLabels,
		}),
		GossipRoundsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mael_gossip_rounds_skipped_total",
			Help:        "Number of per-peer gossip rounds skipped because the peer was already converged.",
			ConstLabels: constLabels,
		}),
		PendingRPCTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mael_pending_rpc_table_size",
			Help:        "Current number of outstanding pending-RPC continuations.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(
		s.MessagesSent,
		s.MessagesReceived,
		s.MessagesDropped,
		s.GossipRoundsSent,
		s.GossipRoundsSkipped,
		s.PendingRPCTableSize,
	)

	return s
}
