package eventrecorder

import (
	"encoding/json"
	"fmt"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// publisher is the pub/sub surface the recorder relays events through.
// It is deliberately best-effort: a slow or absent subscriber never
// blocks event recording.
type publisher interface {
	Publish(e Entry) error
}

// Bus publishes recorded events over a mangos PUB socket so external
// tooling (an operator's dashboard, for instance) can tail lifecycle
// events live without polling the events table. cmd/repmgrd-status does
// not subscribe to it.
type Bus struct {
	sock mangos.Socket
}

// NewBus opens a PUB socket listening at addr, e.g. "tcp://127.0.0.1:6110".
func NewBus(addr string) (*Bus, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create pub socket: %w", err)
	}
	if err := sock.SetOption(mangos.OptionSendDeadline, 50*time.Millisecond); err != nil {
		return nil, fmt.Errorf("set send deadline: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Bus{sock: sock}, nil
}

// Publish sends e as JSON and returns any marshal or send error. The
// Recorder only logs that error and carries on: the bus is enrichment,
// never a dependency of event durability.
func (b *Bus) Publish(e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.sock.Send(payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close shuts down the underlying socket.
func (b *Bus) Close() error {
	return b.sock.Close()
}
