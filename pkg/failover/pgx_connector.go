package failover

import (
	"context"

	"github.com/jackc/pgx/v5"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/voting"
)

// PGXConnector opens a short-lived pgx connection to a node being
// notified or followed.
type PGXConnector struct{}

func (PGXConnector) Connect(ctx context.Context, node cluster.NodeInfo) (PeerConn, error) {
	conn, err := pgx.Connect(ctx, node.Conninfo)
	if err != nil {
		return nil, err
	}
	return &pgxPeerConn{conn: conn, store: voting.NewPGStore(conn)}, nil
}

type pgxPeerConn struct {
	conn  *pgx.Conn
	store voting.Store
}

func (p *pgxPeerConn) IsPrimary(ctx context.Context) (bool, error) {
	var inRecovery bool
	err := p.conn.QueryRow(ctx, `SELECT pg_is_in_recovery()`).Scan(&inRecovery)
	if err != nil {
		return false, err
	}
	return !inRecovery, nil
}

func (p *pgxPeerConn) NotifyFollowPrimary(ctx context.Context, targetID int) error {
	return p.store.NotifyFollowPrimary(ctx, targetID)
}

func (p *pgxPeerConn) Close() error {
	return p.conn.Close(context.Background())
}
