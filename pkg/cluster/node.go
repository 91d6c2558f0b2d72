package cluster

// NodeRole is the replication role a node record carries in the nodes
// table. It mirrors the roles repmgr itself tracks for a streaming
// replication cluster.
type NodeRole int

const (
	RoleUnknown NodeRole = iota
	RolePrimary
	RoleStandby
	RoleWitness
	RoleBDR
)

// String returns the string representation of a NodeRole.
func (r NodeRole) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleStandby:
		return "standby"
	case RoleWitness:
		return "witness"
	case RoleBDR:
		return "bdr"
	default:
		return "unknown"
	}
}

// NodeInfo is a node record as read from the nodes table, plus the
// transient fields the monitoring loop attaches at runtime. Only NodeID,
// NodeName, Role, UpstreamNodeID, Conninfo, Priority and Active are
// persisted; IsVisible and LastWALReceiveLSN are populated by the caller
// during an election round and never written back.
type NodeInfo struct {
	NodeID            int
	NodeName          string
	Role              NodeRole
	UpstreamNodeID    *int
	Conninfo          string
	Priority          int
	Active            bool
	LastWALReceiveLSN uint64

	// IsVisible reports whether this node answered during the most recent
	// sweep of the standby list. It has no meaning outside of an election
	// round.
	IsVisible bool
}

// HasUpstream reports whether the node record names an upstream node.
func (n NodeInfo) HasUpstream() bool {
	return n.UpstreamNodeID != nil
}
