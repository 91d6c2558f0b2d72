package rolemonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/connsupervisor"
	"repmgrd/pkg/election"
	"repmgrd/pkg/eventrecorder"
	"repmgrd/pkg/executor"
	"repmgrd/pkg/failover"
	"repmgrd/pkg/voting"
)

// fakeRow implements pgx.Row over a fixed set of column values.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *int:
			*d = r.vals[i].(int)
		case *string:
			*d = r.vals[i].(string)
		case **int:
			*d = r.vals[i].(*int)
		case *bool:
			*d = r.vals[i].(bool)
		}
	}
	return nil
}

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(dest ...any) error                       { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                               { return nil }

// fakeQuerier serves a single node row by ID and an empty sibling list,
// enough for loadUpstream and an uncontested election round.
type fakeQuerier struct {
	nodes map[int]fakeRow
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	id := args[0].(int)
	row, ok := q.nodes[id]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return emptyRows{}, nil
}

func intPtr(n int) *int { return &n }

func nodeRow(id int, name, role string, upstream *int, conninfo string, priority int, active bool) fakeRow {
	return fakeRow{vals: []any{id, name, role, upstream, conninfo, priority, active}}
}

type fakeConn struct {
	pingErr error
	closed  bool
}

func (c *fakeConn) Ping(ctx context.Context) error  { return c.pingErr }
func (c *fakeConn) Close(ctx context.Context) error { c.closed = true; return nil }

// scriptedDialer hands out fakeConns or a scripted failure in order.
type scriptedDialer struct {
	fail  bool
	calls int
}

func (d *scriptedDialer) Dial(ctx context.Context, conninfo string) (connsupervisor.Conn, error) {
	d.calls++
	if d.fail {
		return nil, errors.New("dial refused")
	}
	return &fakeConn{}, nil
}

func fastSupervisor(fail bool) *connsupervisor.Supervisor {
	return connsupervisor.New(&scriptedDialer{fail: fail},
		connsupervisor.Config{MaxAttempts: 1, RetryInterval: time.Millisecond}, nil)
}

func newTestMonitor(t *testing.T, state *cluster.LocalState, localUp, upstreamUp bool, dir *cluster.NodeDirectory) (*Monitor, *eventrecorder.Recorder) {
	t.Helper()
	recorder := eventrecorder.New(nil, nil)

	selfVotes := voting.NewMemStore(0)
	engine := election.New(selfVotes, dir, election.NewFakeConnector(), nil)

	failoverCfg := failover.DefaultConfig()
	failoverCfg.PollInterval = time.Millisecond
	failoverCfg.WaitPrimaryTimeout = 20 * time.Millisecond
	orchestrator := failover.New(dir, failover.NewFakeConnector(), selfVotes, &executor.FakeExecutor{}, recorder, failoverCfg, nil)

	cfg := Config{ProbeInterval: 2 * time.Millisecond}
	m := New(state, fastSupervisor(!localUp), fastSupervisor(!upstreamUp), dir, selfVotes, engine, orchestrator, recorder, cfg, nil, nil)
	return m, recorder
}

func TestRunPrimaryMonitorReturnsOnRoleChange(t *testing.T) {
	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, Role: cluster.RolePrimary, Conninfo: "host=node1"})
	dir := cluster.NewNodeDirectory(&fakeQuerier{nodes: map[int]fakeRow{}})
	m, recorder := newTestMonitor(t, state, true, true, dir)
	_ = recorder

	state.LocalConn, _ = m.localSupervisor.Open(context.Background(), state.Self.Conninfo, false)

	go func() {
		time.Sleep(10 * time.Millisecond)
		state.SetRole(cluster.RoleStandby)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	m.runPrimaryMonitor(ctx)

	if state.Self.Role != cluster.RoleStandby {
		t.Fatalf("expected role to have changed, got %v", state.Self.Role)
	}
}

func TestRunPrimaryMonitorLogsStartupOnce(t *testing.T) {
	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, Role: cluster.RolePrimary, Conninfo: "host=node1"})
	dir := cluster.NewNodeDirectory(&fakeQuerier{nodes: map[int]fakeRow{}})
	m, _ := newTestMonitor(t, state, true, true, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	m.runPrimaryMonitor(ctx)

	if !state.StartupEventLogged {
		t.Fatal("expected startup event to be logged")
	}
}

func TestRunStandbyMonitorPromotesSelfWhenUpstreamStaysDown(t *testing.T) {
	upstream := 2
	self := cluster.NodeInfo{NodeID: 1, Role: cluster.RoleStandby, Conninfo: "host=node1", UpstreamNodeID: &upstream}
	state := cluster.NewLocalState(self)

	dir := cluster.NewNodeDirectory(&fakeQuerier{nodes: map[int]fakeRow{
		1: nodeRow(1, "node1", "standby", &upstream, "host=node1", 100, true),
		2: nodeRow(2, "node2", "primary", nil, "host=node2", 100, true),
	}})

	m, _ := newTestMonitor(t, state, true, false, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.runStandbyMonitor(ctx)

	if state.GetFailoverState() != cluster.FailoverStatePromoted {
		t.Fatalf("expected PROMOTED, got %v", state.GetFailoverState())
	}
	if state.Self.Role != cluster.RolePrimary {
		t.Fatalf("expected self promoted to primary in local state, got %v", state.Self.Role)
	}
}

func TestLoadUpstreamFailsWithoutConfiguredUpstream(t *testing.T) {
	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, Role: cluster.RoleStandby})
	dir := cluster.NewNodeDirectory(&fakeQuerier{nodes: map[int]fakeRow{}})
	m, _ := newTestMonitor(t, state, true, true, dir)

	if _, err := m.loadUpstream(context.Background()); err != errNoUpstreamConfigured {
		t.Fatalf("expected errNoUpstreamConfigured, got %v", err)
	}
}
