// Package logging configures the process-wide structured logger and
// subscribes it to an eventbus.Bus so every core lifecycle event is also
// captured as a structured log line. The core packages do not import this
// package; eventbus and workflow log their own warnings through log/slog.
package logging

import (
	"log/slog"
	"os"

	"github.com/dshills/ccguard/eventbus"
)

// Options configures the root logger.
type Options struct {
	JSON  bool
	Level slog.Level
}

// New builds a slog.Logger writing to stderr, text or JSON per opts.
func New(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	return slog.New(handler)
}

// AttachBus subscribes logger to every event on bus, logging each at Info
// level with the event's type, source, and data as structured attributes.
// It returns the subscription id so the caller can Off() it on shutdown.
func AttachBus(bus *eventbus.Bus, logger *slog.Logger) string {
	return bus.On(eventbus.Wildcard, func(event eventbus.Event) error {
		logger.Info("event",
			"type", string(event.Type),
			"source", event.Source,
			"timestamp", event.Timestamp,
			"data", event.Data,
		)
		return nil
	})
}
