// Package sqlitestate is a SQLite-backed workflow.StateManager.
//
// It stores the most recent guard and test evidence for each task in a
// single-file database, in WAL mode for concurrent reads. Designed for
// single-process deployments and local development; evidence survives
// process restarts without requiring an external database.
//
// Auto-migration runs on first use: createTables is idempotent and safe
// to call against an existing database file.
package sqlitestate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/ccguard/gates"
	_ "modernc.org/sqlite"
)

// Store persists guard/test evidence per task id and implements
// workflow.StateManager.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open creates or opens the SQLite database at path and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestate: opening %s: %w", path, err)
	}

	// A single connection avoids SQLITE_BUSY from concurrent writers; WAL
	// mode still allows readers to proceed during a write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestate: enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestate: setting busy timeout: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestate: creating tables: %w", err)
	}
	return store, nil
}

func (s *Store) createTables(ctx context.Context) error {
	guardTable := `
		CREATE TABLE IF NOT EXISTS guard_evidence (
			task_id       TEXT NOT NULL PRIMARY KEY,
			status        TEXT NOT NULL,
			report_id     TEXT NOT NULL,
			failing_rules TEXT NOT NULL,
			timestamp     TIMESTAMP NOT NULL,
			updated_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, guardTable); err != nil {
		return fmt.Errorf("creating guard_evidence table: %w", err)
	}

	testTable := `
		CREATE TABLE IF NOT EXISTS test_evidence (
			task_id                 TEXT NOT NULL PRIMARY KEY,
			status                  TEXT NOT NULL,
			run_id                  TEXT NOT NULL,
			failing_tests           TEXT NOT NULL,
			console_errors_count    INTEGER NOT NULL DEFAULT 0,
			network_failures_count  INTEGER NOT NULL DEFAULT 0,
			health_score            REAL,
			timestamp               TIMESTAMP NOT NULL,
			updated_at              TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, testTable); err != nil {
		return fmt.Errorf("creating test_evidence table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_guard_evidence_timestamp ON guard_evidence(timestamp)"); err != nil {
		return fmt.Errorf("creating idx_guard_evidence_timestamp: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_test_evidence_timestamp ON test_evidence(timestamp)"); err != nil {
		return fmt.Errorf("creating idx_test_evidence_timestamp: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// SetGuardEvidence records a guard check's outcome for taskID, replacing any
// prior guard evidence for that task.
func (s *Store) SetGuardEvidence(ctx context.Context, taskID string, ev gates.GuardEvidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sqlitestate: store is closed")
	}

	rules, err := json.Marshal(ev.FailingRules)
	if err != nil {
		return fmt.Errorf("sqlitestate: marshaling failing rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guard_evidence (task_id, status, report_id, failing_rules, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			report_id = excluded.report_id,
			failing_rules = excluded.failing_rules,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at
	`, taskID, string(ev.Status), ev.ReportID, string(rules), ev.Timestamp, time.Now())
	if err != nil {
		return fmt.Errorf("sqlitestate: upserting guard evidence for %s: %w", taskID, err)
	}
	return nil
}

// SetTestEvidence records a test run's outcome for taskID, replacing any
// prior test evidence for that task.
func (s *Store) SetTestEvidence(ctx context.Context, taskID string, ev gates.TestEvidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sqlitestate: store is closed")
	}

	tests, err := json.Marshal(ev.FailingTests)
	if err != nil {
		return fmt.Errorf("sqlitestate: marshaling failing tests: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_evidence (task_id, status, run_id, failing_tests, console_errors_count, network_failures_count, health_score, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			run_id = excluded.run_id,
			failing_tests = excluded.failing_tests,
			console_errors_count = excluded.console_errors_count,
			network_failures_count = excluded.network_failures_count,
			health_score = excluded.health_score,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at
	`, taskID, string(ev.Status), ev.RunID, string(tests), ev.ConsoleErrorsCount, ev.NetworkFailuresCount, ev.HealthScore, ev.Timestamp, time.Now())
	if err != nil {
		return fmt.Errorf("sqlitestate: upserting test evidence for %s: %w", taskID, err)
	}
	return nil
}

// GetEvidenceState implements workflow.StateManager, returning the most
// recent guard and test evidence recorded for taskID. Either field is nil
// if no evidence of that kind has ever been recorded.
func (s *Store) GetEvidenceState(taskID string) (gates.EvidenceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return gates.EvidenceState{}, fmt.Errorf("sqlitestate: store is closed")
	}

	ctx := context.Background()
	var state gates.EvidenceState

	guard, err := s.loadGuardEvidence(ctx, taskID)
	if err != nil {
		return gates.EvidenceState{}, err
	}
	state.LastGuardRun = guard

	test, err := s.loadTestEvidence(ctx, taskID)
	if err != nil {
		return gates.EvidenceState{}, err
	}
	state.LastTestRun = test

	return state, nil
}

func (s *Store) loadGuardEvidence(ctx context.Context, taskID string) (*gates.GuardEvidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, report_id, failing_rules, timestamp FROM guard_evidence WHERE task_id = ?
	`, taskID)

	var status, reportID, rulesJSON string
	var ts time.Time
	if err := row.Scan(&status, &reportID, &rulesJSON, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlitestate: loading guard evidence for %s: %w", taskID, err)
	}

	var rules []string
	if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
		return nil, fmt.Errorf("sqlitestate: decoding failing rules for %s: %w", taskID, err)
	}

	return &gates.GuardEvidence{
		Status:       gates.EvidenceStatus(status),
		ReportID:     reportID,
		FailingRules: rules,
		Timestamp:    ts,
	}, nil
}

func (s *Store) loadTestEvidence(ctx context.Context, taskID string) (*gates.TestEvidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, run_id, failing_tests, console_errors_count, network_failures_count, health_score, timestamp
		FROM test_evidence WHERE task_id = ?
	`, taskID)

	var status, runID, testsJSON string
	var consoleErrors, networkFailures int
	var healthScore sql.NullFloat64
	var ts time.Time
	if err := row.Scan(&status, &runID, &testsJSON, &consoleErrors, &networkFailures, &healthScore, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlitestate: loading test evidence for %s: %w", taskID, err)
	}

	var tests []string
	if err := json.Unmarshal([]byte(testsJSON), &tests); err != nil {
		return nil, fmt.Errorf("sqlitestate: decoding failing tests for %s: %w", taskID, err)
	}

	ev := &gates.TestEvidence{
		Status:               gates.EvidenceStatus(status),
		RunID:                runID,
		FailingTests:         tests,
		ConsoleErrorsCount:   consoleErrors,
		NetworkFailuresCount: networkFailures,
		Timestamp:            ts,
	}
	if healthScore.Valid {
		ev.HealthScore = &healthScore.Float64
	}
	return ev, nil
}
