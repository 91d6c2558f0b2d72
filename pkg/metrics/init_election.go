package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initElectionMetrics() {
	r.ElectionsTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "repmgrd_elections_total",
		Help: "Election rounds run by this node, by result.",
	}, []string{"result"})

	r.ElectionDuration = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "repmgrd_election_duration_seconds",
		Help:    "Wall-clock time to run one election round, from its start (including the desync jitter) to decision.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
	})

	r.ElectionTermGauge = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "repmgrd_election_term",
		Help: "The voting term most recently observed by this node.",
	})
}
