package connsupervisor

import (
	"context"
	"fmt"
	"time"

	"repmgrd/pkg/logging"
)

// Conn is the minimal surface a supervised connection must provide.
// *pgx.Conn satisfies this directly; tests substitute a fake.
type Conn interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a new Conn to a conninfo string. The production Dialer
// wraps pgx.Connect; tests inject a fake that never touches the network.
type Dialer interface {
	Dial(ctx context.Context, conninfo string) (Conn, error)
}

// Config tunes the reconnection policy.
type Config struct {
	MaxAttempts   int           // default 5
	RetryInterval time.Duration // default 1s
}

// DefaultConfig returns the documented defaults: 5 attempts, 1s apart.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, RetryInterval: time.Second}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	return c
}

// TransitionFunc is invoked whenever the supervised connection's status
// changes. The supervisor never emits events itself; it reports transitions
// so the caller (normally the role monitor) can record them.
type TransitionFunc func(conninfo string, from, to Status)

// Supervisor wraps one logical connection and owns its liveness state.
type Supervisor struct {
	dialer     Dialer
	config     Config
	logger     logging.Logger
	onTransition TransitionFunc

	status Status
}

// New creates a Supervisor using the given dialer and retry config.
func New(dialer Dialer, config Config, logger logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Supervisor{
		dialer: dialer,
		config: config.withDefaults(),
		logger: logger.With(logging.Component("connsupervisor")),
		status: StatusUnknown,
	}
}

// OnTransition registers a callback for status changes. Not safe to call
// concurrently with Open/TryReconnect/IsUp.
func (s *Supervisor) OnTransition(fn TransitionFunc) {
	s.onTransition = fn
}

// Status returns the last observed status.
func (s *Supervisor) Status() Status {
	return s.status
}

func (s *Supervisor) setStatus(conninfo string, to Status) {
	if s.status == to {
		return
	}
	from := s.status
	s.status = to
	if s.onTransition != nil {
		s.onTransition(conninfo, from, to)
	}
}

// IsUp cheaply probes liveness of an existing connection without opening
// a new one. A nil conn is never up.
func (s *Supervisor) IsUp(ctx context.Context, conn Conn) bool {
	if conn == nil {
		return false
	}
	if err := conn.Ping(ctx); err != nil {
		return false
	}
	return true
}

// Open dials a fresh connection. When mustSucceed is true, a dial failure
// is returned to the caller for fatal handling at startup; otherwise errors
// are swallowed and a nil Conn is returned (the normal DOWN path).
func (s *Supervisor) Open(ctx context.Context, conninfo string, mustSucceed bool) (Conn, error) {
	conn, err := s.dialer.Dial(ctx, conninfo)
	if err != nil {
		if mustSucceed {
			return nil, fmt.Errorf("connect to %s: %w", conninfo, err)
		}
		s.logger.Warn("connection attempt failed",
			logging.String("conninfo", conninfo), logging.Error(err))
		return nil, nil
	}
	return conn, nil
}

// TryReconnect polls at config.RetryInterval for up to config.MaxAttempts
// attempts. Each attempt probes liveness cheaply (a fresh dial + ping) and
// returns UP with an OK handle on first success, else DOWN with a nil Conn
// after exhausting attempts. It never returns an error to the caller: DOWN
// is a normal outcome, not a failure.
func (s *Supervisor) TryReconnect(ctx context.Context, conninfo string) (Conn, Status) {
	s.setStatus(conninfo, StatusUnknown)

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		conn, err := s.dialer.Dial(ctx, conninfo)
		if err == nil && s.IsUp(ctx, conn) {
			s.setStatus(conninfo, StatusUp)
			return conn, StatusUp
		}
		if conn != nil {
			_ = conn.Close(ctx)
		}

		s.logger.Debug("reconnect attempt failed",
			logging.String("conninfo", conninfo),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", s.config.MaxAttempts))

		if attempt == s.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			s.setStatus(conninfo, StatusDown)
			return nil, StatusDown
		case <-time.After(s.config.RetryInterval):
		}
	}

	s.setStatus(conninfo, StatusDown)
	return nil, StatusDown
}
