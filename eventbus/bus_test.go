package eventbus

import (
	"errors"
	"testing"
	"time"
)

func TestEmitDeliversToExactAndWildcardSubscribers(t *testing.T) {
	bus := New()
	var order []string

	bus.On(EventTaskCreate, func(Event) error {
		order = append(order, "exact")
		return nil
	})
	bus.On(Wildcard, func(Event) error {
		order = append(order, "wild")
		return nil
	})

	bus.Emit(Event{Type: EventTaskCreate})

	if len(order) != 2 || order[0] != "exact" || order[1] != "wild" {
		t.Fatalf("expected exact-then-wildcard delivery order, got %v", order)
	}
}

func TestSubscriptionOrderIsPreservedWithinGroup(t *testing.T) {
	bus := New()
	var order []int

	bus.On(EventTaskCreate, func(Event) error { order = append(order, 1); return nil })
	bus.On(EventTaskCreate, func(Event) error { order = append(order, 2); return nil })
	bus.On(EventTaskCreate, func(Event) error { order = append(order, 3); return nil })

	bus.Emit(Event{Type: EventTaskCreate})

	for i, v := range []int{1, 2, 3} {
		if order[i] != v {
			t.Fatalf("expected order [1 2 3], got %v", order)
		}
	}
}

func TestOnceSelfRemovesBeforeHandlerRuns(t *testing.T) {
	bus := New()
	calls := 0

	bus.Once(EventTaskCreate, func(Event) error {
		calls++
		// Re-entrant emit from inside the handler must not re-deliver to us.
		bus.Emit(Event{Type: EventTaskCreate})
		return nil
	})

	bus.Emit(Event{Type: EventTaskCreate})

	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
	if bus.GetSubscriptionCount(EventTaskCreate) != 0 {
		t.Fatalf("expected once subscription to be removed")
	}
}

func TestHandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := New()
	secondCalled := false

	bus.On(EventTaskCreate, func(Event) error { return errors.New("boom") })
	bus.On(EventTaskCreate, func(Event) error { secondCalled = true; return nil })

	bus.Emit(Event{Type: EventTaskCreate})

	if !secondCalled {
		t.Fatal("expected second handler to run despite first handler's error")
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := New()
	secondCalled := false

	bus.On(EventTaskCreate, func(Event) error { panic("boom") })
	bus.On(EventTaskCreate, func(Event) error { secondCalled = true; return nil })

	bus.Emit(Event{Type: EventTaskCreate})

	if !secondCalled {
		t.Fatal("expected second handler to run despite first handler's panic")
	}
}

func TestOffUnknownIDReturnsFalse(t *testing.T) {
	bus := New()
	if bus.Off("does-not-exist") {
		t.Fatal("expected Off on unknown id to return false")
	}
}

func TestOffRemovesSubscription(t *testing.T) {
	bus := New()
	id := bus.On(EventTaskCreate, func(Event) error { return nil })

	if !bus.Off(id) {
		t.Fatal("expected Off to return true for known id")
	}
	if bus.GetSubscriptionCount(EventTaskCreate) != 0 {
		t.Fatal("expected subscription to be gone")
	}
}

func TestRemoveAllListenersByType(t *testing.T) {
	bus := New()
	bus.On(EventTaskCreate, func(Event) error { return nil })
	bus.On(EventTaskCreate, func(Event) error { return nil })
	bus.On(EventTaskComplete, func(Event) error { return nil })

	bus.RemoveAllListeners(EventTaskCreate)

	if bus.GetSubscriptionCount(EventTaskCreate) != 0 {
		t.Fatal("expected task:create subscriptions removed")
	}
	if bus.GetSubscriptionCount(EventTaskComplete) != 1 {
		t.Fatal("expected task:complete subscription untouched")
	}
}

func TestRemoveAllListenersEverything(t *testing.T) {
	bus := New()
	bus.On(EventTaskCreate, func(Event) error { return nil })
	bus.On(EventTaskComplete, func(Event) error { return nil })

	bus.RemoveAllListeners("")

	if bus.GetSubscriptionCount("") != 0 {
		t.Fatal("expected all subscriptions removed")
	}
}

func TestHistoryCapIsBounded(t *testing.T) {
	bus := NewWithHistorySize(3)
	for i := 0; i < 10; i++ {
		bus.Emit(Event{Type: EventTaskCreate})
	}

	history := bus.GetHistory(HistoryQuery{})
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
}

func TestGetHistoryFiltersByTypeSinceAndLimit(t *testing.T) {
	bus := New()

	t0 := time.Now()
	bus.Emit(Event{Type: EventTaskCreate, Timestamp: t0})
	bus.Emit(Event{Type: EventTaskComplete, Timestamp: t0.Add(time.Second)})
	t2 := t0.Add(2 * time.Second)
	bus.Emit(Event{Type: EventTaskCreate, Timestamp: t2})
	t3 := t0.Add(3 * time.Second)
	bus.Emit(Event{Type: EventTaskCreate, Timestamp: t3})

	byType := bus.GetHistory(HistoryQuery{EventType: EventTaskCreate})
	if len(byType) != 3 {
		t.Fatalf("expected 3 task:create events, got %d", len(byType))
	}

	since := t0.Add(time.Millisecond)
	bySince := bus.GetHistory(HistoryQuery{EventType: EventTaskCreate, Since: &since})
	if len(bySince) != 2 {
		t.Fatalf("expected 2 events since cutoff, got %d", len(bySince))
	}

	limited := bus.GetHistory(HistoryQuery{EventType: EventTaskCreate, Limit: 1})
	if len(limited) != 1 || !limited[0].Timestamp.Equal(t3) {
		t.Fatalf("expected limit to keep the most recent event, got %v", limited)
	}
}

func TestClearHistory(t *testing.T) {
	bus := New()
	bus.Emit(Event{Type: EventTaskCreate})
	bus.ClearHistory()

	if len(bus.GetHistory(HistoryQuery{})) != 0 {
		t.Fatal("expected history cleared")
	}
}

func TestEmitStampsZeroTimestamp(t *testing.T) {
	bus := New()
	bus.Emit(Event{Type: EventTaskCreate})

	history := bus.GetHistory(HistoryQuery{})
	if len(history) != 1 || history[0].Timestamp.IsZero() {
		t.Fatal("expected emit to stamp zero timestamp")
	}
}

func TestWaitForResolvesOnMatch(t *testing.T) {
	bus := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		bus.Emit(Event{Type: EventTaskComplete, Data: map[string]any{"id": "t1"}})
	}()

	event, err := bus.WaitFor(EventTaskComplete, time.Second, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Data["id"] != "t1" {
		t.Fatalf("unexpected event data: %v", event.Data)
	}
	if bus.GetSubscriptionCount(EventTaskComplete) != 0 {
		t.Fatal("expected internal subscription removed after match")
	}
}

func TestWaitForTimesOut(t *testing.T) {
	bus := New()

	_, err := bus.WaitFor(EventTaskComplete, 10*time.Millisecond, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if bus.GetSubscriptionCount(EventTaskComplete) != 0 {
		t.Fatal("expected internal subscription removed after timeout")
	}
}

func TestWaitForRespectsPredicate(t *testing.T) {
	bus := New()

	go func() {
		bus.Emit(Event{Type: EventTaskComplete, Data: map[string]any{"id": "other"}})
		time.Sleep(5 * time.Millisecond)
		bus.Emit(Event{Type: EventTaskComplete, Data: map[string]any{"id": "t1"}})
	}()

	event, err := bus.WaitFor(EventTaskComplete, time.Second, func(e Event) bool {
		return e.Data["id"] == "t1"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Data["id"] != "t1" {
		t.Fatalf("expected predicate to select the matching event, got %v", event.Data)
	}
}
