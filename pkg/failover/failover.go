// Package failover implements the state machine a standby runs after
// confirmed upstream loss: promote itself, follow a newly elected
// primary, or wait for one to emerge, dispatching on the Election
// Engine's result exactly as the transition table describes.
package failover

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/connsupervisor"
	"repmgrd/pkg/election"
	"repmgrd/pkg/eventrecorder"
	"repmgrd/pkg/executor"
	"repmgrd/pkg/logging"
	"repmgrd/pkg/voting"
)

// unwrapPGConn recovers the *pgx.Conn behind a supervised connection,
// for handing to the Event Recorder, which issues SQL and so needs more
// than the Ping/Close surface connsupervisor.Conn exposes. Returning nil
// (not a typed-nil interface) matters: the recorder's "no live
// connection" path checks for a literal nil.
func unwrapPGConn(c connsupervisor.Conn) *pgx.Conn {
	if c == nil {
		return nil
	}
	if u, ok := c.(interface{ Unwrap() *pgx.Conn }); ok {
		return u.Unwrap()
	}
	return nil
}

// recordEvent records through conn if it unwraps to a real *pgx.Conn,
// or defers (nil) otherwise.
func (o *Orchestrator) recordEvent(ctx context.Context, c connsupervisor.Conn, nodeID int, name eventrecorder.EventName, success bool, detail string) {
	if pg := unwrapPGConn(c); pg != nil {
		o.events.Record(ctx, pg, nodeID, name, success, detail)
	} else {
		o.events.Record(ctx, nil, nodeID, name, success, detail)
	}
}

// Config tunes the orchestrator's timing and external commands.
type Config struct {
	PromoteCommand     string
	FollowCommand      string
	PromoteDelay       time.Duration // test aid, 0 by default
	WaitPrimaryTimeout time.Duration // default 60s
	PollInterval       time.Duration // default 1s
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{WaitPrimaryTimeout: 60 * time.Second, PollInterval: time.Second}
}

func (c Config) withDefaults() Config {
	if c.WaitPrimaryTimeout <= 0 {
		c.WaitPrimaryTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// PeerConn is the surface the orchestrator needs against a sibling or
// candidate node: check whether it has actually become primary, and
// hand it a follow directive.
type PeerConn interface {
	IsPrimary(ctx context.Context) (bool, error)
	NotifyFollowPrimary(ctx context.Context, targetID int) error
	Close() error
}

// Connector opens a PeerConn to a node for the duration of one
// orchestrator step.
type Connector interface {
	Connect(ctx context.Context, node cluster.NodeInfo) (PeerConn, error)
}

// Orchestrator runs promote_self, follow_new_primary, and the
// WAITING_NEW_PRIMARY poll loop, recording promote, follow and abort
// outcomes through the Event Recorder.
type Orchestrator struct {
	directory *cluster.NodeDirectory
	connector Connector
	selfVotes voting.Store
	exec      executor.Executor
	events    *eventrecorder.Recorder
	config    Config
	logger    logging.Logger
}

// New returns an Orchestrator. selfVotes acts on the local node's own
// voting_state row (used to poll get_new_primary).
func New(directory *cluster.NodeDirectory, connector Connector, selfVotes voting.Store, exec executor.Executor, events *eventrecorder.Recorder, config Config, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Orchestrator{
		directory: directory,
		connector: connector,
		selfVotes: selfVotes,
		exec:      exec,
		events:    events,
		config:    config.withDefaults(),
		logger:    logger.With(logging.Component("failover")),
	}
}

// Dispatch runs the Failover Orchestrator's NONE-state transitions
// following an election round and drives the state machine through to
// a terminal FailoverState, following the transition table: WON or
// self-best-candidate promotes; other-best-candidate notifies and
// waits; NOT_CANDIDATE waits directly.
func (o *Orchestrator) Dispatch(ctx context.Context, state *cluster.LocalState, localSupervisor *connsupervisor.Supervisor, result election.Result, bestCandidate cluster.NodeInfo, lostUpstream cluster.NodeInfo) cluster.FailoverState {
	switch result {
	case election.ResultWon:
		return o.promoteSelf(ctx, state, localSupervisor, lostUpstream)

	case election.ResultLost:
		if bestCandidate.NodeID == state.Self.NodeID {
			return o.promoteSelf(ctx, state, localSupervisor, lostUpstream)
		}
		if err := o.notifyNode(ctx, bestCandidate, bestCandidate.NodeID); err != nil {
			o.logger.Warn("failed to notify best candidate",
				logging.NodeID(bestCandidate.NodeID), logging.Error(err))
			return cluster.FailoverStateNodeNotificationError
		}
		return o.waitForNewPrimary(ctx, state, localSupervisor, lostUpstream)

	default: // NOT_CANDIDATE
		return o.waitForNewPrimary(ctx, state, localSupervisor, lostUpstream)
	}
}

// notifyNode opens a transient connection to target and hands it a
// follow directive for newPrimaryID.
func (o *Orchestrator) notifyNode(ctx context.Context, target cluster.NodeInfo, newPrimaryID int) error {
	peer, err := o.connector.Connect(ctx, target)
	if err != nil {
		return err
	}
	defer peer.Close()
	return peer.NotifyFollowPrimary(ctx, newPrimaryID)
}

// notifyFollowers tells every (possibly stale) sibling to re-anchor on
// targetID. Unreachable siblings are skipped with a warning and no
// retry: they rediscover the new topology on their next monitoring
// tick.
func (o *Orchestrator) notifyFollowers(ctx context.Context, siblings []cluster.NodeInfo, targetID int) {
	for _, sibling := range siblings {
		if err := o.notifyNode(ctx, sibling, targetID); err != nil {
			o.logger.Warn("could not notify sibling of new primary",
				logging.NodeID(sibling.NodeID), logging.Int("target_node_id", targetID), logging.Error(err))
		}
	}
}

// waitForNewPrimary polls get_new_primary once per PollInterval for up
// to WaitPrimaryTimeout, dispatching on whatever it reports.
func (o *Orchestrator) waitForNewPrimary(ctx context.Context, state *cluster.LocalState, localSupervisor *connsupervisor.Supervisor, lostUpstream cluster.NodeInfo) cluster.FailoverState {
	state.SetFailoverState(cluster.FailoverStateWaitingNewPrimary)
	deadline := time.Now().Add(o.config.WaitPrimaryTimeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return cluster.FailoverStateNoNewPrimary
		case <-time.After(o.config.PollInterval):
		}

		nodeID, ok, err := o.selfVotes.GetNewPrimary(ctx)
		if err != nil {
			o.logger.Warn("get_new_primary failed while waiting", logging.Error(err))
			continue
		}
		if !ok {
			continue
		}

		switch {
		case nodeID == lostUpstream.NodeID:
			return cluster.FailoverStateFollowingOriginalPrimary
		case nodeID == state.Self.NodeID:
			return o.promoteSelf(ctx, state, localSupervisor, lostUpstream)
		default:
			newPrimary, err := o.directory.GetByID(ctx, nodeID)
			if err != nil {
				o.logger.Warn("could not load new primary record", logging.NodeID(nodeID), logging.Error(err))
				return cluster.FailoverStateFollowFail
			}
			return o.followNewPrimary(ctx, state, localSupervisor, newPrimary, lostUpstream)
		}
	}

	return cluster.FailoverStateNoNewPrimary
}

// promoteSelf executes the promote command and records the outcome.
func (o *Orchestrator) promoteSelf(ctx context.Context, state *cluster.LocalState, localSupervisor *connsupervisor.Supervisor, failedUpstream cluster.NodeInfo) cluster.FailoverState {
	if o.config.PromoteDelay > 0 {
		select {
		case <-time.After(o.config.PromoteDelay):
		case <-ctx.Done():
		}
	}

	err := o.exec.Run(ctx, o.config.PromoteCommand)

	var conn connsupervisor.Conn
	if localSupervisor != nil {
		conn, _ = localSupervisor.Open(ctx, state.Self.Conninfo, false)
	}
	state.LocalConn = conn

	if err != nil {
		o.logger.Warn("promote command failed", logging.NodeID(state.Self.NodeID), logging.Error(err))

		primary, lookupErr := o.directory.GetPrimary(ctx)
		if lookupErr == nil && primary.NodeID == failedUpstream.NodeID {
			o.events.Record(ctx, nil, state.Self.NodeID, eventrecorder.EventFailoverAbort, false,
				"upstream reappeared before promotion completed")
			return cluster.FailoverStatePrimaryReappeared
		}
		return cluster.FailoverStatePromotionFailed
	}

	self, refreshErr := o.directory.GetSelf(ctx, state.Self.NodeID)
	if refreshErr == nil {
		state.Self = self
	}
	state.SetRole(cluster.RolePrimary)

	o.recordEvent(ctx, conn, state.Self.NodeID, eventrecorder.EventFailoverPromote, true, "")

	siblings := state.GetStandbyNodes()
	o.notifyFollowers(ctx, siblings, state.Self.NodeID)

	return cluster.FailoverStatePromoted
}

// followNewPrimary verifies newPrimary is actually a primary, runs the
// follow command, and on success refreshes local state from the new
// primary's authoritative record.
func (o *Orchestrator) followNewPrimary(ctx context.Context, state *cluster.LocalState, localSupervisor *connsupervisor.Supervisor, newPrimary, failedPrimary cluster.NodeInfo) cluster.FailoverState {
	peer, err := o.connector.Connect(ctx, newPrimary)
	if err != nil {
		o.logger.Warn("could not connect to candidate new primary", logging.NodeID(newPrimary.NodeID), logging.Error(err))
		return cluster.FailoverStateFollowFail
	}
	isPrimary, err := peer.IsPrimary(ctx)
	peer.Close()
	if err != nil || !isPrimary {
		return cluster.FailoverStateFollowFail
	}

	if localSupervisor != nil && state.LocalConn != nil {
		state.LocalConn.Close(ctx)
		state.LocalConn = nil
	}

	runErr := o.exec.Run(ctx, o.config.FollowCommand)
	if runErr != nil {
		oldPeer, connErr := o.connector.Connect(ctx, failedPrimary)
		if connErr == nil {
			stillPrimary, probeErr := oldPeer.IsPrimary(ctx)
			oldPeer.Close()
			if probeErr == nil && stillPrimary {
				return cluster.FailoverStatePrimaryReappeared
			}
		}
		return cluster.FailoverStateFollowFail
	}

	var conn connsupervisor.Conn
	if localSupervisor != nil {
		conn, _ = localSupervisor.Open(ctx, state.Self.Conninfo, false)
	}
	state.LocalConn = conn
	state.SetUpstreamNodeID(&newPrimary.NodeID)
	state.SetRole(cluster.RoleStandby)

	if self, err := o.directory.GetSelf(ctx, state.Self.NodeID); err == nil {
		state.Self = self
	}

	o.recordEvent(ctx, conn, state.Self.NodeID, eventrecorder.EventFailoverFollow, true, "")
	return cluster.FailoverStateFollowedNewPrimary
}
