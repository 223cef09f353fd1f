// Package natsbridge optionally republishes a Bus's events onto a NATS
// subject, so other processes can observe this process's workflow activity
// without the core event bus ever depending on NATS itself.
package natsbridge

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/dshills/ccguard/eventbus"
)

// Bridge forwards every event published on a Bus to a NATS subject.
type Bridge struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials natsURL and returns a Bridge publishing to subject.
func Connect(natsURL, subject string) (*Bridge, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: connecting to %s: %w", natsURL, err)
	}
	return &Bridge{conn: conn, subject: subject, logger: slog.Default()}, nil
}

// AttachBus subscribes the bridge to bus and returns the subscription id.
func (b *Bridge) AttachBus(bus *eventbus.Bus) string {
	return bus.On(eventbus.Wildcard, func(event eventbus.Event) error {
		payload, err := json.Marshal(event)
		if err != nil {
			b.logger.Warn("natsbridge: failed to marshal event", "error", err)
			return nil
		}
		if err := b.conn.Publish(b.subject, payload); err != nil {
			b.logger.Warn("natsbridge: failed to publish event", "error", err)
		}
		return nil
	})
}

// Close flushes pending publishes and closes the NATS connection.
func (b *Bridge) Close() error {
	if err := b.conn.Flush(); err != nil {
		b.logger.Warn("natsbridge: flush before close failed", "error", err)
	}
	b.conn.Close()
	return nil
}
