package mysqlstate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dshills/ccguard/gates"
)

// getTestDSN returns the MySQL DSN from TEST_MYSQL_DSN, or "" if unset.
func getTestDSN(t *testing.T) string {
	t.Helper()
	return os.Getenv("TEST_MYSQL_DSN")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := getTestDSN(t)
	if dsn == "" {
		t.Skip("Skipping MySQL tests: TEST_MYSQL_DSN not set")
	}
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetAndGetGuardEvidence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	taskID := "mysqlstate-test-" + time.Now().Format("20060102-150405")

	ev := gates.GuardEvidence{
		Status:       gates.StatusFailed,
		ReportID:     "r-1",
		FailingRules: []string{"no_fake_tests"},
		Timestamp:    time.Now().Truncate(time.Second),
	}
	if err := store.SetGuardEvidence(ctx, taskID, ev); err != nil {
		t.Fatalf("SetGuardEvidence failed: %v", err)
	}

	state, err := store.GetEvidenceState(taskID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.LastGuardRun == nil || state.LastGuardRun.Status != gates.StatusFailed {
		t.Fatalf("unexpected guard evidence: %+v", state.LastGuardRun)
	}
}

func TestSetAndGetTestEvidence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	taskID := "mysqlstate-test-" + time.Now().Format("20060102-150405.000")
	score := 0.75

	ev := gates.TestEvidence{
		Status:      gates.StatusPassed,
		RunID:       "run-1",
		HealthScore: &score,
		Timestamp:   time.Now().Truncate(time.Second),
	}
	if err := store.SetTestEvidence(ctx, taskID, ev); err != nil {
		t.Fatalf("SetTestEvidence failed: %v", err)
	}

	state, err := store.GetEvidenceState(taskID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.LastTestRun == nil || state.LastTestRun.HealthScore == nil || *state.LastTestRun.HealthScore != score {
		t.Fatalf("unexpected test evidence: %+v", state.LastTestRun)
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}
	if _, err := store.GetEvidenceState("any"); err == nil {
		t.Fatal("expected error reading from closed store")
	}
}
