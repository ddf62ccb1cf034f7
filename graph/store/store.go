// Package store provides persistence for workflow state and suspensions.
package store

import (
	"context"
	"errors"
	"time"
)

// SchemaVersion is stamped on every persisted Suspension so stored records
// can be migrated if the state layout changes.
const SchemaVersion = 1

// ErrNotFound is returned when a requested run ID or suspend token does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrTokenConsumed is returned by ConsumeToken when the token was already
// consumed by an earlier resume. The persisted state is left untouched.
var ErrTokenConsumed = errors.New("suspend token already consumed")

// Store persists workflow state across steps, process restarts, and
// arbitrarily long suspensions.
//
// Keys are partitioned by run ID; one run can never observe another run's
// records. Implementations:
//   - MemStore: in-memory, for tests and single-process runs
//   - SQLiteStore: single-file database, zero-setup local persistence
//   - MySQLStore: shared database for multi-process deployments
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Store[S any] interface {
	// SaveStep persists the state after a node execution step.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest retrieves the most recent state for a run, identified by
	// the highest step number. Returns ErrNotFound for unknown runs.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// SaveSuspension durably records a suspended run keyed by its token.
	SaveSuspension(ctx context.Context, susp Suspension[S]) error

	// LoadSuspension retrieves a suspension by token. Returns ErrNotFound
	// for unknown tokens. Loading does not consume the token.
	LoadSuspension(ctx context.Context, token string) (Suspension[S], error)

	// ConsumeToken atomically marks a token as used. Returns ErrNotFound
	// for unknown tokens and ErrTokenConsumed if it was already consumed;
	// in both cases no state changes.
	ConsumeToken(ctx context.Context, token string) error

	// DeleteRun removes all steps and suspensions belonging to a run.
	// Used when a finished run is archived.
	DeleteRun(ctx context.Context, runID string) error

	// PurgeBefore removes steps and suspensions created before the cutoff,
	// returning how many records were deleted. Callers schedule this to
	// garbage-collect abandoned runs after their retention period.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// StepRecord is a single execution step in a run's history.
type StepRecord[S any] struct {
	// Step is the sequential step number (1-indexed).
	Step int `json:"step"`

	// NodeID identifies which node produced this state.
	NodeID string `json:"node_id"`

	// State is the workflow state after this step committed.
	State S `json:"state"`

	// CreatedAt records when the step was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Suspension is the durable record of a run paused for human input.
//
// It is the flat, versioned checkpoint format: everything needed to resume
// lives here, so a resume can cross a process restart or a multi-day delay.
type Suspension[S any] struct {
	// Version is the schema version of this record (SchemaVersion at write
	// time).
	Version int `json:"version"`

	// Token is the opaque handle handed to the caller; resuming presents
	// it back. Consumed exactly once.
	Token string `json:"token"`

	// RunID identifies the suspended run.
	RunID string `json:"run_id"`

	// Step is the step number at which the run suspended.
	Step int `json:"step"`

	// NodeID is the node that requested the suspension; resume re-enters
	// through it.
	NodeID string `json:"node_id"`

	// Reason classifies the suspension (needs_feedback, needs_clarification).
	Reason string `json:"reason"`

	// Prompt is the question posed to the human.
	Prompt string `json:"prompt"`

	// State is the full workflow state at the suspension point.
	State S `json:"state"`

	// CreatedAt records when the suspension was persisted.
	CreatedAt time.Time `json:"created_at"`
}
