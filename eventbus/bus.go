package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxHistorySize is the history ring buffer capacity used when a Bus
// is constructed with maxHistorySize <= 0.
const DefaultMaxHistorySize = 1000

// Bus is a typed, wildcard-capable in-process publish/subscribe substrate.
//
// All operations are safe for concurrent use. Delivery for a single Emit call
// is synchronous and single-threaded relative to that call: handlers run one
// after another in subscription order, non-wildcard subscribers first, then
// wildcard subscribers, and a handler failure never prevents delivery to the
// rest.
type Bus struct {
	mu         sync.Mutex
	subs       []*Subscription
	history    []Event
	maxHistory int
	logger     *slog.Logger
}

// New creates a Bus with the default history capacity (DefaultMaxHistorySize).
func New() *Bus {
	return NewWithHistorySize(DefaultMaxHistorySize)
}

// NewWithHistorySize creates a Bus whose history ring buffer holds at most
// maxHistorySize entries (oldest dropped first). A non-positive value falls
// back to DefaultMaxHistorySize.
func NewWithHistorySize(maxHistorySize int) *Bus {
	if maxHistorySize <= 0 {
		maxHistorySize = DefaultMaxHistorySize
	}
	return &Bus{
		maxHistory: maxHistorySize,
		logger:     slog.Default(),
	}
}

// Emit publishes event to every matching subscriber and appends it to history.
//
// If event.Timestamp is zero it is stamped with time.Now() first. Delivery
// order is: all subscribers whose EventType equals event.Type, in the order
// they were registered, then all Wildcard subscribers, in the order they were
// registered. A handler that returns an error is logged and skipped; delivery
// continues to the remaining handlers.
func (b *Bus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	var exact, wild []*Subscription
	var onceIDs []string
	for _, sub := range b.subs {
		switch sub.EventType {
		case event.Type:
			exact = append(exact, sub)
		case Wildcard:
			wild = append(wild, sub)
		}
	}
	for _, sub := range exact {
		if sub.Once {
			onceIDs = append(onceIDs, sub.ID)
		}
	}
	for _, sub := range wild {
		if sub.Once {
			onceIDs = append(onceIDs, sub.ID)
		}
	}
	if len(onceIDs) > 0 {
		b.removeByIDsLocked(onceIDs)
	}
	b.appendHistoryLocked(event)
	b.mu.Unlock()

	b.deliver(exact, event)
	b.deliver(wild, event)
}

func (b *Bus) deliver(subs []*Subscription, event Event) {
	for _, sub := range subs {
		b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus: handler panicked", "subscription_id", sub.ID, "event_type", event.Type, "panic", r)
		}
	}()
	if err := sub.Handler(event); err != nil {
		b.logger.Error("eventbus: handler returned error", "subscription_id", sub.ID, "event_type", event.Type, "error", err)
	}
}

// On registers handler to run on every Event whose Type equals eventType (or
// on every event if eventType is Wildcard). Returns the new Subscription's ID.
func (b *Bus) On(eventType EventType, handler Handler) string {
	return b.subscribe(eventType, handler, false)
}

// Once registers handler to run at most once, for the first matching Event.
// The subscription self-removes before the handler runs, so a re-entrant
// Emit from inside the handler does not re-deliver to it.
func (b *Bus) Once(eventType EventType, handler Handler) string {
	return b.subscribe(eventType, handler, true)
}

func (b *Bus) subscribe(eventType EventType, handler Handler, once bool) string {
	sub := &Subscription{
		ID:        uuid.New().String(),
		EventType: eventType,
		Handler:   handler,
		Once:      once,
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub.ID
}

// Off removes the subscription identified by id. Returns false if no such
// subscription exists.
func (b *Bus) Off(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.ID == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// removeByIDsLocked removes subscriptions by id. Caller must hold b.mu.
func (b *Bus) removeByIDsLocked(ids []string) {
	if len(ids) == 0 {
		return
	}
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := b.subs[:0:0]
	for _, sub := range b.subs {
		if !remove[sub.ID] {
			kept = append(kept, sub)
		}
	}
	b.subs = kept
}

// RemoveAllListeners removes every subscription matching eventType. If
// eventType is empty, every subscription on the bus is removed.
func (b *Bus) RemoveAllListeners(eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eventType == "" {
		b.subs = nil
		return
	}
	kept := b.subs[:0:0]
	for _, sub := range b.subs {
		if sub.EventType != eventType {
			kept = append(kept, sub)
		}
	}
	b.subs = kept
}

// GetSubscriptionCount returns the number of subscriptions matching
// eventType, or the total subscription count if eventType is empty.
func (b *Bus) GetSubscriptionCount(eventType EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eventType == "" {
		return len(b.subs)
	}
	n := 0
	for _, sub := range b.subs {
		if sub.EventType == eventType {
			n++
		}
	}
	return n
}

func (b *Bus) appendHistoryLocked(event Event) {
	b.history = append(b.history, event)
	if len(b.history) > b.maxHistory {
		overflow := len(b.history) - b.maxHistory
		b.history = b.history[overflow:]
	}
}

// HistoryQuery filters the results of GetHistory. An empty EventType matches
// every event. Since, if non-nil, is an inclusive lower bound on timestamp.
// Limit, if non-zero, keeps only the most recent Limit results after the
// other filters are applied.
type HistoryQuery struct {
	EventType EventType
	Since     *time.Time
	Limit     int
}

// GetHistory returns a copy of the recorded history matching query. Filters
// apply in order: EventType equality, then Since (inclusive lower bound),
// then Limit (keep most recent).
func (b *Bus) GetHistory(query HistoryQuery) []Event {
	b.mu.Lock()
	snapshot := make([]Event, len(b.history))
	copy(snapshot, b.history)
	b.mu.Unlock()

	result := snapshot[:0:0]
	for _, event := range snapshot {
		if query.EventType != "" && event.Type != query.EventType {
			continue
		}
		if query.Since != nil && event.Timestamp.Before(*query.Since) {
			continue
		}
		result = append(result, event)
	}

	if query.Limit > 0 && len(result) > query.Limit {
		result = result[len(result)-query.Limit:]
	}
	return result
}

// ClearHistory discards all recorded history.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// WaitFor blocks until an Event matching eventType (and predicate, if
// non-nil) is emitted, or until timeout elapses. On timeout it returns
// ErrTimeout. The internal subscription is removed in both cases.
func (b *Bus) WaitFor(eventType EventType, timeout time.Duration, predicate func(Event) bool) (Event, error) {
	matched := make(chan Event, 1)

	var subID string
	subID = b.On(eventType, func(event Event) error {
		if predicate != nil && !predicate(event) {
			return nil
		}
		select {
		case matched <- event:
		default:
		}
		return nil
	})
	defer b.Off(subID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event := <-matched:
		return event, nil
	case <-timer.C:
		var zero Event
		return zero, ErrTimeout
	}
}
