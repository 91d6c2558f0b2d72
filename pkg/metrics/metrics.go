// Package metrics is the daemon's Metrics Registry: a set of Prometheus
// collectors covering connection supervision, elections, failover, and
// lifecycle events, served over HTTP for scraping. Every recording
// method tolerates a nil *Registry so instrumentation stays optional
// at every call site.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetConnectionUp records the current up/down status of a supervised
// connection, identified by the conninfo string it supervises.
func (r *Registry) SetConnectionUp(endpoint string, up bool) {
	if r == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	r.ConnectionUp.WithLabelValues(endpoint).Set(v)
}

// RecordReconnectAttempt records the outcome of one reconnection
// attempt against a supervised connection.
func (r *Registry) RecordReconnectAttempt(endpoint string, succeeded bool) {
	if r == nil {
		return
	}
	result := "failure"
	if succeeded {
		result = "success"
	}
	r.ConnectionReconnects.WithLabelValues(endpoint, result).Inc()
}

// RecordConnectionStateChange records a supervised connection reaching
// a new status, named by its String() form (e.g. "UP", "DOWN").
func (r *Registry) RecordConnectionStateChange(endpoint, to string) {
	if r == nil {
		return
	}
	r.ConnectionStateChanges.WithLabelValues(endpoint, to).Inc()
}

// RecordElection records one completed election round: its result
// (WON, LOST, NOT_CANDIDATE) and how long it took.
func (r *Registry) RecordElection(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.ElectionsTotal.WithLabelValues(result).Inc()
	r.ElectionDuration.Observe(duration.Seconds())
}

// SetElectionTerm records the voting term most recently observed.
func (r *Registry) SetElectionTerm(term uint64) {
	if r == nil {
		return
	}
	r.ElectionTermGauge.Set(float64(term))
}

// RecordFailover records one Failover Orchestrator dispatch: the
// failover state it reached and how long the dispatch took.
func (r *Registry) RecordFailover(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.FailoverOutcomesTotal.WithLabelValues(outcome).Inc()
	r.FailoverDuration.Observe(duration.Seconds())
}

// SetRole records the local node's current replication role, clearing
// the other known role's gauge. Only "primary" and "standby" are
// tracked: any other role leaves both gauges at 0.
func (r *Registry) SetRole(role string) {
	if r == nil {
		return
	}
	for _, known := range []string{"primary", "standby"} {
		v := 0.0
		if known == role {
			v = 1.0
		}
		r.NodeRole.WithLabelValues(known).Set(v)
	}
}

// RecordEvent records one lifecycle event surfaced through the Event
// Recorder.
func (r *Registry) RecordEvent(name string, success bool) {
	if r == nil {
		return
	}
	r.EventsTotal.WithLabelValues(name, strconv.FormatBool(success)).Inc()
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
