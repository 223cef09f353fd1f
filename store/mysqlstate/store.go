// Package mysqlstate is a MySQL/MariaDB-backed workflow.StateManager.
//
// It stores the most recent guard and test evidence for each task in a
// relational database, for production deployments where evidence must be
// shared across multiple processes or survive beyond a single host.
package mysqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/ccguard/gates"
	_ "github.com/go-sql-driver/mysql"
)

// Store persists guard/test evidence per task id and implements
// workflow.StateManager.
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?params].
// Never hardcode credentials; read the DSN from the environment.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open connects to the database at dsn, verifies connectivity, and
// migrates its schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstate: opening connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysqlstate: pinging database: %w", err)
	}

	store := &Store{db: db}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysqlstate: creating tables: %w", err)
	}
	return store, nil
}

func (s *Store) createTables(ctx context.Context) error {
	guardTable := `
		CREATE TABLE IF NOT EXISTS guard_evidence (
			task_id       VARCHAR(255) NOT NULL PRIMARY KEY,
			status        VARCHAR(32) NOT NULL,
			report_id     VARCHAR(255) NOT NULL,
			failing_rules TEXT NOT NULL,
			timestamp     DATETIME NOT NULL,
			updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_guard_evidence_timestamp (timestamp)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, guardTable); err != nil {
		return fmt.Errorf("creating guard_evidence table: %w", err)
	}

	testTable := `
		CREATE TABLE IF NOT EXISTS test_evidence (
			task_id                VARCHAR(255) NOT NULL PRIMARY KEY,
			status                 VARCHAR(32) NOT NULL,
			run_id                 VARCHAR(255) NOT NULL,
			failing_tests          TEXT NOT NULL,
			console_errors_count   INT NOT NULL DEFAULT 0,
			network_failures_count INT NOT NULL DEFAULT 0,
			health_score           DOUBLE NULL,
			timestamp              DATETIME NOT NULL,
			updated_at             DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_test_evidence_timestamp (timestamp)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, testTable); err != nil {
		return fmt.Errorf("creating test_evidence table: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
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
		return fmt.Errorf("mysqlstate: store is closed")
	}

	rules, err := json.Marshal(ev.FailingRules)
	if err != nil {
		return fmt.Errorf("mysqlstate: marshaling failing rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guard_evidence (task_id, status, report_id, failing_rules, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			report_id = VALUES(report_id),
			failing_rules = VALUES(failing_rules),
			timestamp = VALUES(timestamp),
			updated_at = VALUES(updated_at)
	`, taskID, string(ev.Status), ev.ReportID, string(rules), ev.Timestamp, time.Now())
	if err != nil {
		return fmt.Errorf("mysqlstate: upserting guard evidence for %s: %w", taskID, err)
	}
	return nil
}

// SetTestEvidence records a test run's outcome for taskID, replacing any
// prior test evidence for that task.
func (s *Store) SetTestEvidence(ctx context.Context, taskID string, ev gates.TestEvidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mysqlstate: store is closed")
	}

	tests, err := json.Marshal(ev.FailingTests)
	if err != nil {
		return fmt.Errorf("mysqlstate: marshaling failing tests: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_evidence (task_id, status, run_id, failing_tests, console_errors_count, network_failures_count, health_score, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			run_id = VALUES(run_id),
			failing_tests = VALUES(failing_tests),
			console_errors_count = VALUES(console_errors_count),
			network_failures_count = VALUES(network_failures_count),
			health_score = VALUES(health_score),
			timestamp = VALUES(timestamp),
			updated_at = VALUES(updated_at)
	`, taskID, string(ev.Status), ev.RunID, string(tests), ev.ConsoleErrorsCount, ev.NetworkFailuresCount, ev.HealthScore, ev.Timestamp, time.Now())
	if err != nil {
		return fmt.Errorf("mysqlstate: upserting test evidence for %s: %w", taskID, err)
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
		return gates.EvidenceState{}, fmt.Errorf("mysqlstate: store is closed")
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
		return nil, fmt.Errorf("mysqlstate: loading guard evidence for %s: %w", taskID, err)
	}

	var rules []string
	if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
		return nil, fmt.Errorf("mysqlstate: decoding failing rules for %s: %w", taskID, err)
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
		return nil, fmt.Errorf("mysqlstate: loading test evidence for %s: %w", taskID, err)
	}

	var tests []string
	if err := json.Unmarshal([]byte(testsJSON), &tests); err != nil {
		return nil, fmt.Errorf("mysqlstate: decoding failing tests for %s: %w", taskID, err)
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
