package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store[S] for deployments where
// multiple processes share one persistence backend.
//
// The DSN must enable parseTime so TIMESTAMP columns scan into time.Time:
//
//	st, err := store.NewMySQLStore[pipeline.State]("user:pass@tcp(host:3306)/contentflow?parseTime=true")
//
// Token consumption runs inside a transaction with a row lock, so two
// concurrent resumes of the same token cannot both succeed.
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore connects to MySQL and runs migrations.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore[S]) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_run_step (run_id, step),
			KEY idx_steps_run_id (run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_suspensions (
			token VARCHAR(64) PRIMARY KEY,
			version INT NOT NULL,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			reason VARCHAR(64) NOT NULL,
			prompt TEXT NOT NULL,
			state JSON NOT NULL,
			consumed TINYINT(1) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			KEY idx_suspensions_run_id (run_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// SaveStep persists a workflow execution step, replacing any earlier record
// for the same (run, step).
func (s *MySQLStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (run_id, step, node_id, state, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE node_id = VALUES(node_id), state = VALUES(state)`,
		runID, step, nodeID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest retrieves the highest-numbered step for a run.
func (s *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
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
func (s *MySQLStore[S]) SaveSuspension(ctx context.Context, susp Suspension[S]) error {
	data, err := json.Marshal(susp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal suspension state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO workflow_suspensions
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
func (s *MySQLStore[S]) LoadSuspension(ctx context.Context, token string) (Suspension[S], error) {
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

// ConsumeToken marks a token as used inside a transaction so concurrent
// resumes serialize on the row lock.
func (s *MySQLStore[S]) ConsumeToken(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var consumed bool
	err = tx.QueryRowContext(ctx,
		`SELECT consumed FROM workflow_suspensions WHERE token = ? FOR UPDATE`,
		token).Scan(&consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock token row: %w", err)
	}
	if consumed {
		return ErrTokenConsumed
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workflow_suspensions SET consumed = 1 WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token consumption: %w", err)
	}
	return nil
}

// DeleteRun removes the run's steps and suspensions.
func (s *MySQLStore[S]) DeleteRun(ctx context.Context, runID string) error {
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
func (s *MySQLStore[S]) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
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

// Close releases the connection pool.
func (s *MySQLStore[S]) Close() error {
	return s.db.Close()
}
