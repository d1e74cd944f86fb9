// Package natsmirror adapts the teacher's internal/nats client (reconnect
// handling, JSON publish helpers) into an eventbus.Mirror: when NATS_URL is
// configured, every bus Publish also reaches a "fleet.events.<busName>"
// subject so an external collector can tail the fleet without polling SSE
// (SPEC_FULL.md §3, DOMAIN STACK).
package natsmirror

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/fleethub/controlplane/internal/eventbus"
)

// Mirror wraps a NATS connection and publishes every bus event as JSON to a
// per-bus subject.
type Mirror struct {
	conn *nc.Conn
}

// Connect dials url with the teacher's reconnect-indefinitely policy. A
// connection failure here is not fatal to the caller: the bus mirror is an
// optional observability path, never a prerequisite for serving requests.
func Connect(url string) (*Mirror, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				log.Printf("[NATSMIRROR] disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(c *nc.Conn) {
			log.Printf("[NATSMIRROR] reconnected to %s", c.ConnectedUrl())
		}),
	}
	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsmirror: connect: %w", err)
	}
	return &Mirror{conn: conn}, nil
}

// Close drains and closes the underlying connection.
func (m *Mirror) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

// Publish satisfies eventbus.Mirror: it JSON-encodes e and publishes it to
// "fleet.events.<busName>".
func (m *Mirror) Publish(busName string, e eventbus.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("natsmirror: marshal event: %w", err)
	}
	subject := "fleet.events." + busName
	if err := m.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("natsmirror: publish to %s: %w", subject, err)
	}
	return nil
}
