package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initFailoverMetrics() {
	r.FailoverOutcomesTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "repmgrd_failover_outcomes_total",
		Help: "Failover Orchestrator dispatches, by the failover state reached.",
	}, []string{"outcome"})

	r.FailoverDuration = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "repmgrd_failover_duration_seconds",
		Help:    "Wall-clock time of one Failover Orchestrator dispatch, from the election result to a terminal failover state.",
		Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
	})

	r.NodeRole = promauto.With(r.registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "repmgrd_node_role",
		Help: "Whether this node currently holds the named role (1) or not (0).",
	}, []string{"role"})
}
