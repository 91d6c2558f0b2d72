// Package rolemonitor runs the daemon's top-level loop: dispatch to
// PrimaryMonitor or StandbyMonitor based on the local node's current
// role, forever, re-dispatching every time a role change or failover
// outcome returns control to the loop.
package rolemonitor

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/connsupervisor"
	"repmgrd/pkg/election"
	"repmgrd/pkg/eventrecorder"
	"repmgrd/pkg/failover"
	"repmgrd/pkg/logging"
	"repmgrd/pkg/metrics"
	"repmgrd/pkg/voting"
)

// errNoUpstreamConfigured is returned when a standby's own node record
// has no upstream_node_id set, which should never happen for a node
// that isn't primary.
var errNoUpstreamConfigured = errors.New("rolemonitor: standby node has no configured upstream")

// unwrapPGConn recovers the *pgx.Conn behind a supervised connection
// for handing to the Event Recorder, mirroring the same unwrap done in
// the Failover Orchestrator. Returning a literal nil (never a typed-nil
// interface) matters: the recorder's "no live connection" path checks
// for exactly that.
func unwrapPGConn(c connsupervisor.Conn) *pgx.Conn {
	if c == nil {
		return nil
	}
	if u, ok := c.(interface{ Unwrap() *pgx.Conn }); ok {
		return u.Unwrap()
	}
	return nil
}

// Config tunes the monitor's polling cadence.
type Config struct {
	ProbeInterval     time.Duration // default 1s
	LogStatusInterval time.Duration // 0 disables the still-alive heartbeat
}

// DefaultConfig returns the documented default: probe every second, no
// heartbeat line.
func DefaultConfig() Config {
	return Config{ProbeInterval: time.Second}
}

func (c Config) withDefaults() Config {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = time.Second
	}
	return c
}

// Monitor is the Role Monitor: it owns the supervised local and
// upstream connections and dispatches each iteration on state.Self.Role.
type Monitor struct {
	state *cluster.LocalState

	localSupervisor    *connsupervisor.Supervisor
	upstreamSupervisor *connsupervisor.Supervisor

	directory    *cluster.NodeDirectory
	selfVotes    voting.Store
	election     *election.Engine
	orchestrator *failover.Orchestrator
	events       *eventrecorder.Recorder

	config  Config
	logger  logging.Logger
	metrics *metrics.Registry
}

// New returns a Monitor wired against the given state and collaborators.
// metrics may be nil, in which case the monitor runs unmetered.
func New(
	state *cluster.LocalState,
	localSupervisor, upstreamSupervisor *connsupervisor.Supervisor,
	directory *cluster.NodeDirectory,
	selfVotes voting.Store,
	engine *election.Engine,
	orchestrator *failover.Orchestrator,
	events *eventrecorder.Recorder,
	config Config,
	logger logging.Logger,
	metricsRegistry *metrics.Registry,
) *Monitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Monitor{
		state:              state,
		localSupervisor:    localSupervisor,
		upstreamSupervisor: upstreamSupervisor,
		directory:          directory,
		selfVotes:          selfVotes,
		election:           engine,
		orchestrator:       orchestrator,
		events:             events,
		config:             config.withDefaults(),
		logger:             logger.With(logging.Component("rolemonitor")),
		metrics:            metricsRegistry,
	}
}

// Run is the endless outer loop: reset voting status, then dispatch on
// role, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := m.selfVotes.ResetVotingStatus(ctx); err != nil {
			m.logger.Warn("failed to reset voting status at top of loop", logging.Error(err))
		}

		switch m.state.Self.Role {
		case cluster.RolePrimary:
			m.runPrimaryMonitor(ctx)
		default:
			m.runStandbyMonitor(ctx)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// CheckReload reports and clears a pending hot-reload signal, for the
// caller to act on (e.g. re-read configuration) between dispatches.
func (m *Monitor) CheckReload() bool {
	return m.state.ConsumeReloadRequest()
}

func (m *Monitor) logStartupEventOnce(ctx context.Context) {
	if m.state.StartupEventLogged {
		return
	}
	m.events.Record(ctx, nil, m.state.Self.NodeID, eventrecorder.EventStart, true, "")
	m.metrics.RecordEvent(string(eventrecorder.EventStart), true)
	m.state.StartupEventLogged = true
}

// runPrimaryMonitor runs while the local node believes itself primary:
// it only ever watches its own liveness. A primary that goes DOWN and
// stays down has nothing for the Role Monitor to act on beyond logging;
// promotion and following only ever happen on the standby side.
func (m *Monitor) runPrimaryMonitor(ctx context.Context) {
	m.logStartupEventOnce(ctx)
	m.metrics.SetRole(m.state.Self.Role.String())

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	var lastHeartbeat time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.CheckReload() {
			return
		}
		if m.state.Self.Role != cluster.RolePrimary {
			return
		}

		if m.localSupervisor.IsUp(ctx, m.state.LocalConn) {
			if m.config.LogStatusInterval > 0 && time.Since(lastHeartbeat) >= m.config.LogStatusInterval {
				m.logger.Info("still alive", logging.NodeID(m.state.Self.NodeID), logging.String("role", "primary"))
				lastHeartbeat = time.Now()
			}
			continue
		}

		m.logger.Warn("lost local connection", logging.NodeID(m.state.Self.NodeID))
		m.metrics.SetConnectionUp(m.state.Self.Conninfo, false)
		m.metrics.RecordConnectionStateChange(m.state.Self.Conninfo, connsupervisor.StatusDown.String())
		if m.state.LocalConn != nil {
			m.state.LocalConn.Close(ctx)
			m.state.LocalConn = nil
		}
		m.recordEvent(ctx, nil, eventrecorder.EventLocalDisconnect, true, "")

		conn, status := m.localSupervisor.TryReconnect(ctx, m.state.Self.Conninfo)
		m.state.LocalConn = conn
		m.metrics.RecordReconnectAttempt(m.state.Self.Conninfo, status == connsupervisor.StatusUp)
		if status == connsupervisor.StatusUp {
			m.metrics.SetConnectionUp(m.state.Self.Conninfo, true)
			m.metrics.RecordConnectionStateChange(m.state.Self.Conninfo, connsupervisor.StatusUp.String())
			m.recordEvent(ctx, conn, eventrecorder.EventLocalReconnect, true, "")
			continue
		}

		m.logger.Warn("local node still down after reconnect attempts, remaining in failed state",
			logging.NodeID(m.state.Self.NodeID))
	}
}

// runStandbyMonitor runs while the local node follows an upstream: it
// watches upstream liveness and, on a confirmed loss that reconnection
// cannot repair, runs an election round and dispatches its result
// through the Failover Orchestrator. It returns once the orchestrator
// reaches a terminal state, so Run can re-dispatch on the (possibly
// new) role.
func (m *Monitor) runStandbyMonitor(ctx context.Context) {
	upstream, err := m.loadUpstream(ctx)
	if err != nil {
		m.logger.Error("could not load upstream node record", logging.Error(err))
		return
	}

	conn, err := m.upstreamSupervisor.Open(ctx, upstream.Conninfo, false)
	if err != nil {
		m.logger.Warn("initial upstream connection failed", logging.NodeID(upstream.NodeID), logging.Error(err))
	}
	m.state.UpstreamConn = conn
	m.metrics.SetConnectionUp(upstream.Conninfo, conn != nil)

	m.logStartupEventOnce(ctx)
	m.metrics.SetRole(m.state.Self.Role.String())

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.CheckReload() {
			return
		}
		if m.state.Self.Role == cluster.RolePrimary {
			return
		}

		if m.localSupervisor != nil {
			if !m.localSupervisor.IsUp(ctx, m.state.LocalConn) {
				lc, _ := m.localSupervisor.TryReconnect(ctx, m.state.Self.Conninfo)
				m.state.LocalConn = lc
			}
		}

		if m.upstreamSupervisor.IsUp(ctx, m.state.UpstreamConn) {
			continue
		}

		m.logger.Warn("lost upstream connection", logging.NodeID(upstream.NodeID))
		m.metrics.SetConnectionUp(upstream.Conninfo, false)
		m.metrics.RecordConnectionStateChange(upstream.Conninfo, connsupervisor.StatusDown.String())
		if m.state.UpstreamConn != nil {
			m.state.UpstreamConn.Close(ctx)
			m.state.UpstreamConn = nil
		}
		m.recordEvent(ctx, nil, eventrecorder.EventLocalDisconnect, true,
			"upstream connection lost")

		conn, status := m.upstreamSupervisor.TryReconnect(ctx, upstream.Conninfo)
		m.state.UpstreamConn = conn
		m.metrics.RecordReconnectAttempt(upstream.Conninfo, status == connsupervisor.StatusUp)
		if status == connsupervisor.StatusUp {
			m.metrics.SetConnectionUp(upstream.Conninfo, true)
			m.metrics.RecordConnectionStateChange(upstream.Conninfo, connsupervisor.StatusUp.String())
			m.recordEvent(ctx, conn, eventrecorder.EventLocalReconnect, true,
				"upstream connection restored")
			continue
		}

		m.logger.Warn("upstream confirmed down, starting election", logging.NodeID(upstream.NodeID))

		electionStart := time.Now()
		result, siblings, err := m.election.Run(ctx, m.state, upstream.NodeID)
		if err != nil {
			m.logger.Warn("election round failed", logging.Error(err))
			continue
		}
		m.metrics.RecordElection(result.String(), time.Since(electionStart))
		m.state.SetStandbyNodes(siblings)

		best := election.PollBestCandidate(m.state.Self, siblings)
		failoverStart := time.Now()
		outcome := m.orchestrator.Dispatch(ctx, m.state, m.localSupervisor, result, best, upstream)
		m.metrics.RecordFailover(outcome.String(), time.Since(failoverStart))
		m.state.SetFailoverState(outcome)
		m.metrics.SetRole(m.state.Self.Role.String())
		m.logger.Info("failover dispatch complete",
			logging.String("outcome", outcome.String()), logging.NodeID(m.state.Self.NodeID))
		return
	}
}

func (m *Monitor) loadUpstream(ctx context.Context) (cluster.NodeInfo, error) {
	if m.state.Self.UpstreamNodeID == nil {
		return cluster.NodeInfo{}, errNoUpstreamConfigured
	}
	return m.directory.GetByID(ctx, *m.state.Self.UpstreamNodeID)
}

// recordEvent is a thin convenience wrapper so the monitor does not need
// to unwrap connsupervisor.Conn down to *pgx.Conn at every call site;
// nodeID is always the local node's own ID in this package's usage.
func (m *Monitor) recordEvent(ctx context.Context, c connsupervisor.Conn, name eventrecorder.EventName, success bool, detail string) {
	if pg := unwrapPGConn(c); pg != nil {
		m.events.Record(ctx, pg, m.state.Self.NodeID, name, success, detail)
	} else {
		m.events.Record(ctx, nil, m.state.Self.NodeID, name, success, detail)
	}
	m.metrics.RecordEvent(string(name), success)
}
