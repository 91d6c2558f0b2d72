package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every Prometheus collector the daemon exposes, grouped
// the same way the metric concerns are grouped in code: connection
// supervision, election, failover, and lifecycle events. A nil
// *Registry is valid everywhere a Registry is accepted: every Record*
// and Set* method is a no-op on a nil receiver, so instrumentation is
// opt-in and callers never need a feature flag to skip it.
type Registry struct {
	registry *prometheus.Registry

	// Connection supervision (pkg/connsupervisor).
	ConnectionUp          *prometheus.GaugeVec
	ConnectionReconnects   *prometheus.CounterVec
	ConnectionStateChanges *prometheus.CounterVec

	// Election (pkg/election).
	ElectionsTotal    *prometheus.CounterVec
	ElectionDuration  prometheus.Histogram
	ElectionTermGauge prometheus.Gauge

	// Failover (pkg/failover).
	FailoverOutcomesTotal *prometheus.CounterVec
	FailoverDuration      prometheus.Histogram
	NodeRole              *prometheus.GaugeVec

	// Lifecycle events (pkg/eventrecorder).
	EventsTotal *prometheus.CounterVec
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide Registry, creating it on
// first use.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry builds a fresh Registry backed by its own
// prometheus.Registry, so tests can construct one without colliding
// with the process-wide default.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initConnectionMetrics()
	r.initElectionMetrics()
	r.initFailoverMetrics()
	r.initEventMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying prometheus.Registry, for
// wiring into promhttp.HandlerFor.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}
