package election

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/voting"
)

// PGXConnector opens a short-lived pgx connection to a sibling for the
// duration of one election step. Unlike the supervised local/upstream
// connections, these are not retried: an unreachable sibling is simply
// marked not visible for this round.
type PGXConnector struct{}

func (PGXConnector) Connect(ctx context.Context, node cluster.NodeInfo) (voting.Store, io.Closer, error) {
	conn, err := pgx.Connect(ctx, node.Conninfo)
	if err != nil {
		return nil, nil, err
	}
	return voting.NewPGStore(conn), pgxCloser{conn}, nil
}

type pgxCloser struct {
	conn *pgx.Conn
}

func (c pgxCloser) Close() error {
	return c.conn.Close(context.Background())
}
