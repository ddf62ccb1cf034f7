package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// A single-file database with zero setup, suited to local and
// single-process deployments:
//
//	st, err := store.NewSQLiteStore[pipeline.State]("./runs.db")
//	if err != nil { ... }
//	defer st.Close()
//
// Use ":memory:" as the path for an ephemeral database in tests. WAL mode
// is enabled so readers are not blocked by the single writer.
//
// Schema:
//   - workflow_steps: step-by-step execution history per run
//   - workflow_suspensions: suspended runs keyed by token, with a consumed
//     flag enforcing the resume-once protocol
type SQLiteStore[S any] struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// migrations.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_suspensions (
			token TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			prompt TEXT NOT NULL,
			state TEXT NOT NULL,
			consumed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suspensions_run_id ON workflow_suspensions(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// SaveStep persists a workflow execution step. Re-saving the same (run,
// step) replaces the earlier record, which makes crash-retried commits
// harmless.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (run_id, step, node_id, state, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, step) DO UPDATE SET node_id=excluded.node_id, state=excluded.state`,
		runID, step, nodeID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest retrieves the highest-numbered step for a run.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S

	var (
		data string
		step int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state, step FROM workflow_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`,
		runID).Scan(&data, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// SaveSuspension records a suspended run keyed by token.
func (s *SQLiteStore[S]) SaveSuspension(ctx context.Context, susp Suspension[S]) error {
	data, err := json.Marshal(susp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal suspension state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO workflow_suspensions
		 (token, version, run_id, step, node_id, reason, prompt, state, consumed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		susp.Token, susp.Version, susp.RunID, susp.Step, susp.NodeID,
		susp.Reason, susp.Prompt, string(data), susp.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save suspension: %w", err)
	}
	return nil
}

// LoadSuspension retrieves a suspension by token without consuming it.
func (s *SQLiteStore[S]) LoadSuspension(ctx context.Context, token string) (Suspension[S], error) {
	var zero Suspension[S]

	var (
		susp Suspension[S]
		data string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, version, run_id, step, node_id, reason, prompt, state, created_at
		 FROM workflow_suspensions WHERE token = ?`,
		token).Scan(&susp.Token, &susp.Version, &susp.RunID, &susp.Step,
		&susp.NodeID, &susp.Reason, &susp.Prompt, &data, &susp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load suspension: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &susp.State); err != nil {
		return zero, fmt.Errorf("failed to unmarshal suspension state: %w", err)
	}
	return susp, nil
}

// ConsumeToken atomically flips the consumed flag, exactly once.
func (s *SQLiteStore[S]) ConsumeToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_suspensions SET consumed = 1 WHERE token = ? AND consumed = 0`,
		token)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: distinguish unknown from replayed.
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM workflow_suspensions WHERE token = ?`, token).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check token: %w", err)
	}
	return ErrTokenConsumed
}

// DeleteRun removes the run's steps and suspensions.
func (s *SQLiteStore[S]) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_steps WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_suspensions WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete suspensions: %w", err)
	}
	return nil
}

// PurgeBefore garbage-collects records older than the cutoff.
func (s *SQLiteStore[S]) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for _, stmt := range []string{
		`DELETE FROM workflow_steps WHERE created_at < ?`,
		`DELETE FROM workflow_suspensions WHERE created_at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, stmt, cutoff.UTC())
		if err != nil {
			return total, fmt.Errorf("failed to purge records: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read rows affected: %w", err)
		}
		total += int(n)
	}
	return total, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}
