// Package metrics provides Prometheus instrumentation for the chat service.
// Gauges mirror the live trackers; counters cover event throughput and failures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectedUsers tracks identities with at least one open connection.
	ConnectedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bankchat_connected_users",
		Help: "Current number of identities with at least one open connection",
	})

	// ActiveRooms tracks chat sessions with at least one subscribed connection.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bankchat_active_rooms",
		Help: "Current number of chat sessions with live subscribers",
	})

	// OpenConnections tracks websocket connections held by the transport.
	OpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bankchat_open_connections",
		Help: "Current number of open websocket connections",
	})

	// EventsTotal counts inbound events processed by the hub, labeled by event name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bankchat_events_total",
		Help: "Total number of inbound events processed",
	}, []string{"event"})

	// MessagesTotal counts persisted chat messages, labeled by sender type.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bankchat_messages_total",
		Help: "Total number of chat messages persisted",
	}, []string{"sender_type"}) // sender_type = "user", "agent", "system"

	// ErrorsTotal counts message_error frames sent, labeled by kind.
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bankchat_errors_total",
		Help: "Total number of message_error events emitted",
	}, []string{"kind"})

	// EventLatency records hub handler latency in seconds.
	EventLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bankchat_event_latency_seconds",
		Help:    "Hub event handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectedUsers,
		ActiveRooms,
		OpenConnections,
		EventsTotal,
		MessagesTotal,
		ErrorsTotal,
		EventLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
