// Package audit keeps a write-only SQLite record of finished orchestrations.
//
// The orchestrator only ever appends to the store through ObserveRun; reads
// exist for operators inspecting past runs from the command line.
package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/debashishroy00/ccom/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID              string
	Event              string
	Success            bool
	StartedAt          time.Time
	DurationMs         int64
	ParallelEfficiency float64
	FailedTasks        []string
	BlockedTasks       []string
	BlockingGates      []string
	Recommendations    []string
}

// TaskRecord is one row of the task_results table.
type TaskRecord struct {
	RunID      string
	Task       string
	Status     string
	Success    bool
	Backend    string
	DurationMs int64
	Message    string
	Errors     []string
}

// Store manages the SQLite audit database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the audit database at dbPath. ":memory:" opens a
// private in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// dsn applies busy_timeout to every pooled connection, not just the first.
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	return "file:" + dbPath + "?_busy_timeout=5000"
}

// execWithRetry executes a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ObserveRun appends result and its task results in a single transaction.
func (s *Store) ObserveRun(ctx context.Context, result *models.OrchestrationResult) error {
	if result == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, event, success, started_at, duration_ms, parallel_efficiency, failed_tasks, blocked_tasks, blocking_gates, recommendations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Event,
		result.Success,
		result.StartedAt.UTC(),
		result.TotalDurationMs(),
		result.ParallelEfficiency,
		mustJSON(result.FailedTasks, "[]"),
		mustJSON(result.BlockedTasks, "[]"),
		mustJSON(result.BlockingGates, "[]"),
		mustJSON(result.Recommendations, "[]"),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", result.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO task_results
		(run_id, task, status, success, backend, duration_ms, message, errors, metrics, gates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare task insert: %w", err)
	}
	defer stmt.Close()

	names := make([]string, 0, len(result.Results))
	for name := range result.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tr := result.Results[name]
		_, err := stmt.ExecContext(ctx,
			result.RunID,
			name,
			string(tr.Status),
			tr.Success,
			string(tr.BackendUsed),
			tr.DurationMs(),
			tr.Message,
			mustJSON(tr.Errors, "[]"),
			mustJSON(tr.Metrics, "{}"),
			mustJSON(tr.Gates, "{}"),
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", result.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT run_id, event, success, started_at, duration_ms,
		parallel_efficiency, failed_tasks, blocked_tasks, blocking_gates, recommendations
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec                                     RunRecord
			failed, blocked, gates, recommendations string
		)
		if err := rows.Scan(&rec.RunID, &rec.Event, &rec.Success, &rec.StartedAt, &rec.DurationMs,
			&rec.ParallelEfficiency, &failed, &blocked, &gates, &recommendations); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.FailedTasks = decodeStrings(failed)
		rec.BlockedTasks = decodeStrings(blocked)
		rec.BlockingGates = decodeStrings(gates)
		rec.Recommendations = decodeStrings(recommendations)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TaskResults returns the task rows recorded for runID ordered by task name.
func (s *Store) TaskResults(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, task, status, success, backend, duration_ms, message, errors
		FROM task_results WHERE run_id = ? ORDER BY task`, runID)
	if err != nil {
		return nil, fmt.Errorf("query task results: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var (
			rec    TaskRecord
			errsJS string
		)
		if err := rows.Scan(&rec.RunID, &rec.Task, &rec.Status, &rec.Success, &rec.Backend,
			&rec.DurationMs, &rec.Message, &errsJS); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		rec.Errors = decodeStrings(errsJS)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func mustJSON(v any, empty string) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return empty
	}
	return string(data)
}

func decodeStrings(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
