package cluster

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row over a fixed set of column values, or a
// sentinel error if the scan should fail.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(dest, r.vals)
}

func scanInto(dest []any, vals []any) error {
	for i := range dest {
		switch d := dest[i].(type) {
		case *int:
			*d = vals[i].(int)
		case *string:
			*d = vals[i].(string)
		case **int:
			*d = vals[i].(*int)
		case *bool:
			*d = vals[i].(bool)
		}
	}
	return nil
}

// fakeRows implements pgx.Rows over an in-memory table of rows.
type fakeRows struct {
	rows []fakeRow
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.i-1].Scan(dest...) }
func (r *fakeRows) Values() ([]any, error) { return r.rows[r.i-1].vals, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeQuerier struct {
	row  fakeRow
	rows *fakeRows
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.row
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return q.rows, nil
}

func intPtr(n int) *int { return &n }

func TestGetSelfScansNodeRecord(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{vals: []any{2, "node2", "standby", intPtr(1), "host=node2", 100, true}}}
	d := NewNodeDirectory(q)

	n, err := d.GetSelf(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.NodeID != 2 || n.NodeName != "node2" || n.Role != RoleStandby {
		t.Fatalf("unexpected node: %+v", n)
	}
	if n.UpstreamNodeID == nil || *n.UpstreamNodeID != 1 {
		t.Fatalf("expected upstream node 1, got %v", n.UpstreamNodeID)
	}
}

func TestGetSelfNoRowsReturnsErrSelfNotFound(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
	d := NewNodeDirectory(q)

	_, err := d.GetSelf(context.Background(), 99)
	if err != ErrSelfNotFound {
		t.Fatalf("expected ErrSelfNotFound, got %v", err)
	}
}

func TestGetByIDNoRowsReturnsErrNodeNotFound(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
	d := NewNodeDirectory(q)

	_, err := d.GetByID(context.Background(), 99)
	if err != ErrNodeNotFound {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestGetActiveSiblingsScansAllRows(t *testing.T) {
	rows := &fakeRows{rows: []fakeRow{
		{vals: []any{2, "node2", "standby", intPtr(1), "host=node2", 100, true}},
		{vals: []any{3, "node3", "witness", intPtr(1), "host=node3", 0, true}},
	}}
	q := &fakeQuerier{rows: rows}
	d := NewNodeDirectory(q)

	siblings, err := d.GetActiveSiblings(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(siblings) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(siblings))
	}
	if siblings[0].NodeID != 2 || siblings[1].NodeID != 3 {
		t.Fatalf("unexpected sibling order: %+v", siblings)
	}
	if siblings[1].Role != RoleWitness {
		t.Fatalf("expected witness role, got %v", siblings[1].Role)
	}
}

func TestGetAllReturnsEveryNode(t *testing.T) {
	rows := &fakeRows{rows: []fakeRow{
		{vals: []any{1, "node1", "primary", (*int)(nil), "host=node1", 100, true}},
		{vals: []any{2, "node2", "standby", intPtr(1), "host=node2", 100, true}},
	}}
	q := &fakeQuerier{rows: rows}
	d := NewNodeDirectory(q)

	all, err := d.GetAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].Role != RolePrimary || all[1].Role != RoleStandby {
		t.Fatalf("unexpected nodes: %+v", all)
	}
}
