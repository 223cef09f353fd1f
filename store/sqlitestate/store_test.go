package sqlitestate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/ccguard/gates"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evidence.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetEvidenceStateEmptyIsNil(t *testing.T) {
	store := newTestStore(t)
	state, err := store.GetEvidenceState("task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.LastGuardRun != nil || state.LastTestRun != nil {
		t.Fatalf("expected empty evidence state, got %+v", state)
	}
}

func TestSetAndGetGuardEvidence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	ev := gates.GuardEvidence{
		Status:       gates.StatusFailed,
		ReportID:     "r-1",
		FailingRules: []string{"no_fake_tests", "no_todo_stubs"},
		Timestamp:    now,
	}
	if err := store.SetGuardEvidence(ctx, "task-1", ev); err != nil {
		t.Fatalf("SetGuardEvidence failed: %v", err)
	}

	state, err := store.GetEvidenceState("task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.LastGuardRun == nil {
		t.Fatal("expected guard evidence to be present")
	}
	if state.LastGuardRun.Status != gates.StatusFailed || len(state.LastGuardRun.FailingRules) != 2 {
		t.Fatalf("unexpected guard evidence: %+v", state.LastGuardRun)
	}
	if !state.LastGuardRun.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, state.LastGuardRun.Timestamp)
	}
}

func TestSetGuardEvidenceOverwritesPrior(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := gates.GuardEvidence{Status: gates.StatusFailed, ReportID: "r-1", Timestamp: time.Now()}
	second := gates.GuardEvidence{Status: gates.StatusPassed, ReportID: "r-2", Timestamp: time.Now()}

	if err := store.SetGuardEvidence(ctx, "task-1", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.SetGuardEvidence(ctx, "task-1", second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := store.GetEvidenceState("task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.LastGuardRun.Status != gates.StatusPassed || state.LastGuardRun.ReportID != "r-2" {
		t.Fatalf("expected latest guard evidence to win, got %+v", state.LastGuardRun)
	}
}

func TestSetAndGetTestEvidenceWithHealthScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	score := 0.92

	ev := gates.TestEvidence{
		Status:               gates.StatusPassed,
		RunID:                "run-1",
		FailingTests:         nil,
		ConsoleErrorsCount:   1,
		NetworkFailuresCount: 0,
		HealthScore:          &score,
		Timestamp:            time.Now(),
	}
	if err := store.SetTestEvidence(ctx, "task-1", ev); err != nil {
		t.Fatalf("SetTestEvidence failed: %v", err)
	}

	state, err := store.GetEvidenceState("task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.LastTestRun == nil {
		t.Fatal("expected test evidence to be present")
	}
	if state.LastTestRun.HealthScore == nil || *state.LastTestRun.HealthScore != score {
		t.Fatalf("expected health score %v, got %+v", score, state.LastTestRun.HealthScore)
	}
	if state.LastTestRun.ConsoleErrorsCount != 1 {
		t.Fatalf("expected console errors count 1, got %d", state.LastTestRun.ConsoleErrorsCount)
	}
}

func TestEvidenceIsolatedPerTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetGuardEvidence(ctx, "task-a", gates.GuardEvidence{Status: gates.StatusPassed, Timestamp: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := store.GetEvidenceState("task-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.LastGuardRun != nil {
		t.Fatalf("expected task-b to have no guard evidence, got %+v", state.LastGuardRun)
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	if _, err := store.GetEvidenceState("task-1"); err == nil {
		t.Fatal("expected error reading from closed store")
	}
	if err := store.SetGuardEvidence(context.Background(), "task-1", gates.GuardEvidence{}); err == nil {
		t.Fatal("expected error writing to closed store")
	}
}
