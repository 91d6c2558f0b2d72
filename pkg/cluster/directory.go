package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of *pgx.Conn the Node Directory needs. Tests
// substitute a fake so directory logic never touches a real database.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NodeDirectory reads peer records from the nodes table. It holds no
// state of its own beyond the connection it queries through.
type NodeDirectory struct {
	conn Querier
}

// NewNodeDirectory returns a Node Directory backed by conn.
func NewNodeDirectory(conn Querier) *NodeDirectory {
	return &NodeDirectory{conn: conn}
}

const nodeColumns = `node_id, node_name, type, upstream_node_id, conninfo, priority, active`

func scanNode(row pgx.Row) (NodeInfo, error) {
	var n NodeInfo
	var roleStr string
	var upstreamID *int

	if err := row.Scan(&n.NodeID, &n.NodeName, &roleStr, &upstreamID, &n.Conninfo, &n.Priority, &n.Active); err != nil {
		return NodeInfo{}, err
	}
	n.UpstreamNodeID = upstreamID
	n.Role = parseNodeRole(roleStr)
	return n, nil
}

func parseNodeRole(s string) NodeRole {
	switch s {
	case "primary":
		return RolePrimary
	case "standby":
		return RoleStandby
	case "witness":
		return RoleWitness
	case "bdr":
		return RoleBDR
	default:
		return RoleUnknown
	}
}

// GetSelf looks up the local node's own record by node ID.
func (d *NodeDirectory) GetSelf(ctx context.Context, nodeID int) (NodeInfo, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE node_id = $1`
	n, err := scanNode(d.conn.QueryRow(ctx, query, nodeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return NodeInfo{}, ErrSelfNotFound
	}
	if err != nil {
		return NodeInfo{}, fmt.Errorf("get self node %d: %w", nodeID, err)
	}
	return n, nil
}

// GetByID looks up a peer node record by node ID.
func (d *NodeDirectory) GetByID(ctx context.Context, nodeID int) (NodeInfo, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE node_id = $1`
	n, err := scanNode(d.conn.QueryRow(ctx, query, nodeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return NodeInfo{}, ErrNodeNotFound
	}
	if err != nil {
		return NodeInfo{}, fmt.Errorf("get node %d: %w", nodeID, err)
	}
	return n, nil
}

// GetPrimary returns the node record whose role is currently primary.
// Used after a failed promotion to discover whether the old upstream
// reappeared before the local promote command finished.
func (d *NodeDirectory) GetPrimary(ctx context.Context) (NodeInfo, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE type = 'primary' AND active LIMIT 1`
	n, err := scanNode(d.conn.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return NodeInfo{}, ErrNodeNotFound
	}
	if err != nil {
		return NodeInfo{}, fmt.Errorf("get primary node: %w", err)
	}
	return n, nil
}

// GetAll returns every node record in the cluster, in node_id order,
// for read-only reporting tools that need the whole picture rather
// than one node's perspective on it.
func (d *NodeDirectory) GetAll(ctx context.Context) ([]NodeInfo, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY node_id`
	rows, err := d.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeInfo
	for rows.Next() {
		var n NodeInfo
		var roleStr string
		var upstreamID *int
		if err := rows.Scan(&n.NodeID, &n.NodeName, &roleStr, &upstreamID, &n.Conninfo, &n.Priority, &n.Active); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		n.UpstreamNodeID = upstreamID
		n.Role = parseNodeRole(roleStr)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate all nodes: %w", err)
	}
	return out, nil
}

// GetActiveSiblings returns every active node other than selfID, in
// node_id order. excludeUpstreamID, when non-zero, omits that node too —
// used during an election round to exclude the upstream being followed
// away from, matching the candidate list the original daemon builds
// before calling for votes.
func (d *NodeDirectory) GetActiveSiblings(ctx context.Context, selfID, excludeUpstreamID int) ([]NodeInfo, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes
		WHERE active AND node_id <> $1 AND node_id <> $2
		ORDER BY node_id`
	rows, err := d.conn.Query(ctx, query, selfID, excludeUpstreamID)
	if err != nil {
		return nil, fmt.Errorf("list active siblings of node %d: %w", selfID, err)
	}
	defer rows.Close()

	var out []NodeInfo
	for rows.Next() {
		var n NodeInfo
		var roleStr string
		var upstreamID *int
		if err := rows.Scan(&n.NodeID, &n.NodeName, &roleStr, &upstreamID, &n.Conninfo, &n.Priority, &n.Active); err != nil {
			return nil, fmt.Errorf("scan sibling row: %w", err)
		}
		n.UpstreamNodeID = upstreamID
		n.Role = parseNodeRole(roleStr)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active siblings: %w", err)
	}
	return out, nil
}
