package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initEventMetrics() {
	r.EventsTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "repmgrd_events_total",
		Help: "Lifecycle events recorded by the Role Monitor (start, local disconnect, local reconnect), by event name and success. Failover promote/follow/abort events are not counted.",
	}, []string{"event", "success"})
}
