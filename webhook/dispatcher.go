// Package webhook forwards selected eventbus events to configured HTTP
// endpoints as JSON POST bodies, the way an external collaborator would
// be notified of a gate block or task completion without polling.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dshills/ccguard/eventbus"
)

// defaultEventTypes are the events forwarded when Dispatcher.EventTypes is
// left empty.
var defaultEventTypes = []eventbus.EventType{
	eventbus.EventWorkflowGateBlocked,
	eventbus.EventWorkflowGatePending,
	eventbus.EventTaskComplete,
	eventbus.EventTaskFail,
}

// Dispatcher POSTs matching bus events to a fixed set of target URLs.
type Dispatcher struct {
	Targets    []string
	EventTypes []eventbus.EventType
	Client     *http.Client
	Logger     *slog.Logger
}

// New creates a Dispatcher posting to targets for the default event types.
func New(targets []string) *Dispatcher {
	return &Dispatcher{
		Targets:    targets,
		EventTypes: defaultEventTypes,
		Client:     &http.Client{Timeout: 10 * time.Second},
		Logger:     slog.Default(),
	}
}

// AttachBus subscribes the dispatcher to bus and returns the subscription id.
func (d *Dispatcher) AttachBus(bus *eventbus.Bus) string {
	types := d.EventTypes
	if len(types) == 0 {
		types = defaultEventTypes
	}

	wanted := make(map[eventbus.EventType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	return bus.On(eventbus.Wildcard, func(event eventbus.Event) error {
		if !wanted[event.Type] {
			return nil
		}
		d.dispatch(event)
		return nil
	})
}

func (d *Dispatcher) dispatch(event eventbus.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		d.logger().Warn("webhook: failed to marshal event", "error", err)
		return
	}

	for _, target := range d.Targets {
		if err := d.post(target, body); err != nil {
			d.logger().Warn("webhook: delivery failed", "target", target, "event", event.Type, "error", err)
		}
	}
}

func (d *Dispatcher) post(target string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s responded with status %d", target, resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Client != nil && d.Client.Timeout > 0 {
		return d.Client.Timeout
	}
	return 10 * time.Second
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
