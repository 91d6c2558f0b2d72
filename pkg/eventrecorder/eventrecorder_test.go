package eventrecorder

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeConn struct {
	execErr error
	queries []string
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error) {
	c.queries = append(c.queries, sql)
	return pgx.CommandTag{}, c.execErr
}

type fakePublisher struct {
	published []Entry
}

func (p *fakePublisher) Publish(e Entry) error {
	p.published = append(p.published, e)
	return nil
}

func TestRecordWritesThroughLiveConnection(t *testing.T) {
	c := &fakeConn{}
	pub := &fakePublisher{}
	r := New(nil, pub)

	r.Record(context.Background(), c, 1, EventStart, true, "")

	if len(c.queries) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(c.queries))
	}
	if len(pub.published) != 1 || pub.published[0].Name != EventStart {
		t.Fatalf("expected event published, got %+v", pub.published)
	}
}

func TestRecordDefersWithNilConnection(t *testing.T) {
	pub := &fakePublisher{}
	r := New(nil, pub)

	r.Record(context.Background(), nil, 1, EventLocalDisconnect, false, "connection reset")

	if r.pending == nil {
		t.Fatal("expected event to become the pending entry")
	}
	if r.pending.Name != EventLocalDisconnect {
		t.Fatalf("unexpected pending entry: %+v", r.pending)
	}
}

func TestRecordFlushesPendingEntryOnNextLiveRecord(t *testing.T) {
	c := &fakeConn{}
	r := New(nil, nil)

	r.Record(context.Background(), nil, 1, EventLocalDisconnect, false, "down")
	if r.pending == nil {
		t.Fatal("expected pending entry after deferred record")
	}

	r.Record(context.Background(), c, 1, EventLocalReconnect, true, "")

	if len(c.queries) != 2 {
		t.Fatalf("expected pending entry plus new entry flushed, got %d queries", len(c.queries))
	}
	if r.pending != nil {
		t.Fatal("expected no pending entry after a successful flush")
	}
}

func TestRecordKeepsPendingWhenWriteFails(t *testing.T) {
	c := &fakeConn{execErr: errors.New("connection reset")}
	r := New(nil, nil)

	r.Record(context.Background(), c, 1, EventStart, true, "")

	if r.pending == nil {
		t.Fatal("expected event retained as pending after write failure")
	}
}
