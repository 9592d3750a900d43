package trajectory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs and steps in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("trajectory store opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			task_name TEXT NOT NULL DEFAULT '',
			instruction TEXT NOT NULL,
			status TEXT NOT NULL,
			steps INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			result TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			state TEXT NOT NULL,
			thought TEXT NOT NULL DEFAULT '',
			response TEXT NOT NULL DEFAULT '',
			reflection TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			tool_calls TEXT NOT NULL DEFAULT '',
			tool_results TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

// SaveRun inserts or replaces a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, task_id, task_name, instruction, status, steps, input_tokens, output_tokens, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.TaskID, run.TaskName, run.Instruction, run.Status, run.Steps,
		run.InputTokens, run.OutputTokens, run.Result,
		run.StartedAt.Unix(), run.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// BatchSaveSteps inserts a batch of step records in one transaction.
func (s *SQLiteStore) BatchSaveSteps(ctx context.Context, steps []StepRecord) error {
	if len(steps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO steps
		(run_id, number, state, thought, response, reflection, error, tool_calls, tool_results,
		 input_tokens, output_tokens, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range steps {
		if _, err := stmt.ExecContext(ctx,
			rec.RunID, rec.Number, rec.State, rec.Thought, rec.Response,
			rec.Reflection, rec.Error, rec.ToolCalls, rec.ToolResults,
			rec.InputTokens, rec.OutputTokens,
			rec.StartedAt.Unix(), rec.FinishedAt.Unix(), rec.DurationMS); err != nil {
			return fmt.Errorf("insert step %s/%d: %w", rec.RunID, rec.Number, err)
		}
	}
	return tx.Commit()
}

// GetRun returns one run summary.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var run RunRecord
	var started, finished int64
	err := s.db.QueryRowContext(ctx, `SELECT run_id, task_id, task_name, instruction, status, steps,
		input_tokens, output_tokens, result, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID).Scan(
		&run.RunID, &run.TaskID, &run.TaskName, &run.Instruction, &run.Status, &run.Steps,
		&run.InputTokens, &run.OutputTokens, &run.Result, &started, &finished)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.StartedAt = unixTime(started)
	run.FinishedAt = unixTime(finished)
	return &run, nil
}

// GetSteps returns the steps of a run in order.
func (s *SQLiteStore) GetSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT run_id, number, state, thought, response,
		reflection, error, tool_calls, tool_results, input_tokens, output_tokens,
		started_at, finished_at, duration_ms
		FROM steps WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		var started, finished int64
		if err := rows.Scan(&rec.RunID, &rec.Number, &rec.State, &rec.Thought, &rec.Response,
			&rec.Reflection, &rec.Error, &rec.ToolCalls, &rec.ToolResults,
			&rec.InputTokens, &rec.OutputTokens, &started, &finished, &rec.DurationMS); err != nil {
			return nil, err
		}
		rec.StartedAt = unixTime(started)
		rec.FinishedAt = unixTime(finished)
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT run_id, task_id, task_name, instruction, status, steps,
		input_tokens, output_tokens, result, started_at, finished_at
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var started, finished int64
		if err := rows.Scan(&run.RunID, &run.TaskID, &run.TaskName, &run.Instruction, &run.Status, &run.Steps,
			&run.InputTokens, &run.OutputTokens, &run.Result, &started, &finished); err != nil {
			return nil, err
		}
		run.StartedAt = unixTime(started)
		run.FinishedAt = unixTime(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunCount returns the number of stored runs.
func (s *SQLiteStore) RunCount(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	return count
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
