package connsupervisor

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// PGXDialer dials real Postgres connections via pgx. It is the production
// Dialer; tests use a fake that never touches the network.
type PGXDialer struct{}

// Dial opens a single, non-pooled connection — the supervisor owns exactly
// one logical connection per endpoint, matching the one-PGconn-per-role
// model the daemon is built around (local, upstream, and transient peer
// connections opened during an election).
func (PGXDialer) Dial(ctx context.Context, conninfo string) (Conn, error) {
	conn, err := pgx.Connect(ctx, conninfo)
	if err != nil {
		return nil, err
	}
	return pgxConn{conn}, nil
}

// pgxConn adapts *pgx.Conn to the Conn interface.
type pgxConn struct {
	*pgx.Conn
}

func (c pgxConn) Ping(ctx context.Context) error {
	return c.Conn.Ping(ctx)
}

func (c pgxConn) Close(ctx context.Context) error {
	return c.Conn.Close(ctx)
}

// Unwrap returns the underlying *pgx.Conn for callers (Node Directory,
// Voting Client) that need to issue queries, not just probe liveness.
func (c pgxConn) Unwrap() *pgx.Conn {
	return c.Conn
}
