package cluster

import (
	"sync"

	"repmgrd/pkg/connsupervisor"
)

// FailoverState is the outcome recorded against the most recent failover
// attempt. It replaces a scatter of booleans with one closed sum, mirroring
// how the daemon reports its own status.
type FailoverState int

const (
	FailoverStateUnknown FailoverState = iota
	FailoverStateNone
	FailoverStatePromoted
	FailoverStatePromotionFailed
	FailoverStatePrimaryReappeared
	FailoverStateLocalNodeFailure
	FailoverStateWaitingNewPrimary
	FailoverStateFollowedNewPrimary
	FailoverStateFollowingOriginalPrimary
	FailoverStateNoNewPrimary
	FailoverStateFollowFail
	FailoverStateNodeNotificationError
)

// String returns the string representation of a FailoverState.
func (s FailoverState) String() string {
	switch s {
	case FailoverStateNone:
		return "NONE"
	case FailoverStatePromoted:
		return "PROMOTED"
	case FailoverStatePromotionFailed:
		return "PROMOTION_FAILED"
	case FailoverStatePrimaryReappeared:
		return "PRIMARY_REAPPEARED"
	case FailoverStateLocalNodeFailure:
		return "LOCAL_NODE_FAILURE"
	case FailoverStateWaitingNewPrimary:
		return "WAITING_NEW_PRIMARY"
	case FailoverStateFollowedNewPrimary:
		return "FOLLOWED_NEW_PRIMARY"
	case FailoverStateFollowingOriginalPrimary:
		return "FOLLOWING_ORIGINAL_PRIMARY"
	case FailoverStateNoNewPrimary:
		return "NO_NEW_PRIMARY"
	case FailoverStateFollowFail:
		return "FOLLOW_FAIL"
	case FailoverStateNodeNotificationError:
		return "NODE_NOTIFICATION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// LocalState is the daemon's working memory for the node it runs against.
// It is the explicit replacement for the original implementation's
// module-scope globals (local_conn, upstream_conn, primary_conn,
// failover_state, standby_nodes): one object, passed by reference to
// every component that needs it, instead of package-level state shared
// by address.
//
// PrimaryConn is deliberately absent: the primary connection is a view
// computed from Upstream's role, not a second owning handle, so the two
// can never silently alias each other the way the original's
// primary_conn = upstream_conn assignment could.
type LocalState struct {
	mu sync.RWMutex

	Self NodeInfo

	LocalConn    connsupervisor.Conn
	UpstreamConn connsupervisor.Conn

	FailoverState FailoverState
	StandbyNodes  []NodeInfo

	StartupEventLogged bool
	GotReloadSignal    bool
}

// NewLocalState returns a LocalState for the given local node record.
func NewLocalState(self NodeInfo) *LocalState {
	return &LocalState{
		Self:          self,
		FailoverState: FailoverStateNone,
	}
}

// PrimaryConn returns the connection that currently plays the primary
// role: the local connection when this node is itself primary, the
// upstream connection otherwise. It returns nil when neither handle is
// live.
func (s *LocalState) PrimaryConn() connsupervisor.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Self.Role == RolePrimary {
		return s.LocalConn
	}
	return s.UpstreamConn
}

// SetFailoverState records the outcome of a failover attempt.
func (s *LocalState) SetFailoverState(fs FailoverState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailoverState = fs
}

// GetFailoverState returns the most recently recorded failover outcome.
func (s *LocalState) GetFailoverState() FailoverState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FailoverState
}

// SetStandbyNodes replaces the cached sibling list, normally refreshed at
// the start of each election round.
func (s *LocalState) SetStandbyNodes(nodes []NodeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StandbyNodes = nodes
}

// GetStandbyNodes returns a copy of the cached sibling list.
func (s *LocalState) GetStandbyNodes() []NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NodeInfo, len(s.StandbyNodes))
	copy(out, s.StandbyNodes)
	return out
}

// SetRole updates the local node's own role, e.g. after a promotion.
func (s *LocalState) SetRole(role NodeRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Self.Role = role
}

// SetUpstreamNodeID updates the local node's upstream, e.g. after
// following a new primary.
func (s *LocalState) SetUpstreamNodeID(id *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Self.UpstreamNodeID = id
}

// RequestReload is called from the signal handler goroutine to flip
// GotReloadSignal; it only ever sets the flag, never acts on it.
func (s *LocalState) RequestReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GotReloadSignal = true
}

// ConsumeReloadRequest reports and clears a pending reload request.
func (s *LocalState) ConsumeReloadRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.GotReloadSignal {
		return false
	}
	s.GotReloadSignal = false
	return true
}
