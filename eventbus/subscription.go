package eventbus

// Handler processes a delivered Event. A handler that returns an error does
// not stop delivery to other handlers: the error is logged and swallowed by
// the Bus (see Bus.Emit).
type Handler func(Event) error

// Subscription records one registered handler.
//
// Subscription.ID is unique within the Bus it was created on. Once is true
// for subscriptions created via Bus.Once; these self-remove before their
// handler runs, so a re-entrant Emit from inside the handler cannot re-deliver
// to them.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   Handler
	Once      bool
}
