package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the Prometheus collectors used by the notification bus.
type Registry struct {
	prom prometheus.Registerer

	ActiveConnections   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	MessagesReceived    prometheus.Counter
	MessagesSent        prometheus.Counter
	BroadcastDropped    prometheus.Counter
	Evictions           *prometheus.CounterVec
	HandshakeRejections *prometheus.CounterVec
}

// NewRegistry creates collectors registered against reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		prom: reg,
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eventsub_ws_connections_active",
			Help: "Number of live authenticated WebSocket connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventsub_ws_connections_total",
			Help: "Total number of connections admitted since start",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventsub_ws_messages_received_total",
			Help: "Total inbound client command frames",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventsub_ws_messages_sent_total",
			Help: "Total outbound event frames written to sockets",
		}),
		BroadcastDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "eventsub_ws_broadcast_dropped_total",
			Help: "Broadcast deliveries skipped because the target was not open",
		}),
		Evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsub_ws_evictions_total",
			Help: "Connection evictions by reason",
		}, []string{"reason"}),
		HandshakeRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsub_ws_handshake_rejections_total",
			Help: "Handshake rejections by authentication reason",
		}, []string{"reason"}),
	}
}

// Handler exposes the default Prometheus metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
