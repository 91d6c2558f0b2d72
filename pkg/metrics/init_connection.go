package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initConnectionMetrics() {
	r.ConnectionUp = promauto.With(r.registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "repmgrd_connection_up",
		Help: "Whether a supervised connection is currently up (1) or down (0).",
	}, []string{"endpoint"})

	r.ConnectionReconnects = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "repmgrd_connection_reconnects_total",
		Help: "Reconnection attempts against a supervised connection, by outcome.",
	}, []string{"endpoint", "result"})

	r.ConnectionStateChanges = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "repmgrd_connection_state_changes_total",
		Help: "Transitions of a supervised connection's status, by the state reached.",
	}, []string{"endpoint", "to"})
}
