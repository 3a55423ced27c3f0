package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handshake outcomes used as the "outcome" label.
const (
	outcomeAdmitted         = "admitted"
	outcomeMissingToken     = "missing_token"
	outcomeInvalidToken     = "invalid_token"
	outcomeIdentityNotFound = "identity_not_found"
	outcomeShuttingDown     = "shutting_down"
	outcomeInternal         = "internal"
)

// Metrics groups the gateway's Prometheus collectors. Each gateway owns its
// own registry so several gateways can coexist in one process (tests).
type Metrics struct {
	Registry *prometheus.Registry

	handshakes         *prometheus.CounterVec
	activeConnections  prometheus.Gauge
	presenceBroadcasts prometheus.Counter
	chatBroadcasts     prometheus.Counter
	chatDropped        *prometheus.CounterVec
	evictions          prometheus.Counter
}

// NewMetrics registers the gateway collectors plus the Go and process
// collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_gateway_handshakes_total",
			Help: "WebSocket handshakes by outcome",
		}, []string{"outcome"}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "presence_gateway_connections_active",
			Help: "Number of currently authenticated connections",
		}),
		presenceBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_gateway_presence_broadcasts_total",
			Help: "Number of clients-updated fan-outs",
		}),
		chatBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_gateway_chat_broadcasts_total",
			Help: "Number of message-from-server fan-outs",
		}),
		chatDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_gateway_chat_dropped_total",
			Help: "Inbound chat messages dropped before broadcast",
		}, []string{"reason"}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_gateway_slow_consumer_evictions_total",
			Help: "Connections closed because their send queue was full",
		}),
	}
}
