package taskfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/ccguard/eventbus"
)

func waitFor(t *testing.T, fn func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestParseNameRecognizesGuardAndTest(t *testing.T) {
	taskID, kind, err := parseName("guard-task-1.json")
	if err != nil || taskID != "task-1" || kind != "guard" {
		t.Fatalf("unexpected parse result: %q %q %v", taskID, kind, err)
	}

	taskID, kind, err = parseName("test-task-2.json")
	if err != nil || taskID != "task-2" || kind != "test" {
		t.Fatalf("unexpected parse result: %q %q %v", taskID, kind, err)
	}
}

func TestParseNameRejectsUnrecognized(t *testing.T) {
	if _, _, err := parseName("notes.json"); err == nil {
		t.Fatal("expected error for unrecognized filename")
	}
	if _, _, err := parseName("guard-.json"); err == nil {
		t.Fatal("expected error for missing task id")
	}
}

func TestWatcherIngestsDroppedGuardEvidence(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New()

	var received eventbus.Event
	got := make(chan struct{}, 1)
	bus.On(eventbus.EventGuardEvidence, func(event eventbus.Event) error {
		received = event
		got <- struct{}{}
		return nil
	})

	w, err := New(dir, bus, Options{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	stop := make(chan struct{})
	go w.Start(stop)
	defer close(stop)

	payload := `{"status":"failed","reportId":"r-1","failingRules":["no_fake_tests"],"timestamp":"2026-01-01T00:00:00Z"}`
	path := filepath.Join(dir, "guard-task-9.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("writing drop file: %v", err)
	}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for guard evidence event")
	}

	if received.Data["taskId"] != "task-9" {
		t.Fatalf("expected taskId task-9, got %v", received.Data["taskId"])
	}
}

func TestWatcherIngestsDroppedTestEvidence(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New()

	got := make(chan struct{}, 1)
	bus.On(eventbus.EventTestEvidence, func(event eventbus.Event) error {
		got <- struct{}{}
		return nil
	})

	w, err := New(dir, bus, Options{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	stop := make(chan struct{})
	go w.Start(stop)
	defer close(stop)

	payload := `{"status":"passed","runId":"run-1","timestamp":"2026-01-01T00:00:00Z"}`
	path := filepath.Join(dir, "test-task-9.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("writing drop file: %v", err)
	}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for test evidence event")
	}
}

func TestWatcherIgnoresUnrecognizedFiles(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New()
	w, err := New(dir, bus, Options{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	stop := make(chan struct{})
	go w.Start(stop)
	defer close(stop)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if w.DroppedEvents() != 0 {
		t.Fatalf("expected no dropped-evidence errors, got %d", w.DroppedEvents())
	}
}
