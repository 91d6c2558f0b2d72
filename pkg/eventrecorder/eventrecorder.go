// Package eventrecorder appends the daemon's named lifecycle events to
// an events table and relays a copy over a best-effort pub/sub bus so
// external tooling can tail them live.
package eventrecorder

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"repmgrd/pkg/logging"
)

// EventName is the closed vocabulary of lifecycle events the daemon
// records.
type EventName string

const (
	EventStart           EventName = "repmgrd_start"
	EventLocalDisconnect EventName = "repmgrd_local_disconnect"
	EventLocalReconnect  EventName = "repmgrd_local_reconnect"
	EventFailoverPromote EventName = "repmgrd_failover_promote"
	EventFailoverFollow  EventName = "repmgrd_failover_follow"
	EventFailoverAbort   EventName = "repmgrd_failover_abort"
)

// Entry is one recorded event, including the correlation ID assigned at
// record time.
type Entry struct {
	ID      string    `json:"id"`
	NodeID  int       `json:"node_id"`
	Name    EventName `json:"event_name"`
	Success bool      `json:"success"`
	Detail  string    `json:"detail"`
}

// conn is the subset of *pgx.Conn the recorder needs.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// Recorder persists events through whatever connection is handed to
// Record, and best-effort republishes them on a pub/sub bus (see
// bus.go). A nil connection is accepted: the event is held as the single
// pending entry and flushed on the next successful Record call, matching
// the "no persistent queue beyond one pending entry" behavior.
type Recorder struct {
	logger logging.Logger
	bus    publisher

	mu      sync.Mutex
	pending *Entry
}

// New returns a Recorder. bus may be nil, in which case publishing is
// skipped.
func New(logger logging.Logger, bus publisher) *Recorder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Recorder{
		logger: logger.With(logging.Component("eventrecorder")),
		bus:    bus,
	}
}

// Record persists an event through conn. A nil conn defers the write:
// the entry becomes the single pending entry, replacing any previous
// one, and is flushed the next time Record is called with a live
// connection.
func (r *Recorder) Record(ctx context.Context, c conn, nodeID int, name EventName, success bool, detail string) {
	entry := Entry{
		ID:      uuid.NewString(),
		NodeID:  nodeID,
		Name:    name,
		Success: success,
		Detail:  detail,
	}

	r.mu.Lock()
	toFlush := r.pending
	r.mu.Unlock()

	if c == nil {
		r.mu.Lock()
		r.pending = &entry
		r.mu.Unlock()
		r.logger.Debug("event deferred, no live connection",
			logging.String("event", string(name)), logging.NodeID(nodeID))
		r.publish(entry)
		return
	}

	if toFlush != nil {
		if err := r.write(ctx, c, *toFlush); err != nil {
			r.logger.Warn("failed to flush pending event",
				logging.String("event", string(toFlush.Name)), logging.Error(err))
		} else {
			r.mu.Lock()
			r.pending = nil
			r.mu.Unlock()
		}
	}

	if err := r.write(ctx, c, entry); err != nil {
		r.logger.Warn("failed to record event",
			logging.String("event", string(name)), logging.Error(err))
		r.mu.Lock()
		r.pending = &entry
		r.mu.Unlock()
		return
	}
	r.publish(entry)
}

func (r *Recorder) write(ctx context.Context, c conn, e Entry) error {
	query := `INSERT INTO events (event_id, node_id, event_name, success, details, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, now())`
	_, err := c.Exec(ctx, query, e.ID, e.NodeID, string(e.Name), e.Success, e.Detail)
	return err
}

func (r *Recorder) publish(e Entry) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(e); err != nil {
		r.logger.Debug("event bus publish failed", logging.Error(err))
	}
}
