package pipeline

import (
	"fmt"
	"strings"
)

// ValidationError indicates the brief was still incomplete after the repair
// attempts were exhausted. The run cannot proceed; the caller must restart
// with a better brief.
type ValidationError struct {
	// Missing lists the required fields the validator could not recover.
	Missing []string

	// Attempts is the number of parse attempts made.
	Attempts int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("brief invalid after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("brief invalid after %d attempts, missing: %s",
		e.Attempts, strings.Join(e.Missing, ", "))
}

// StageError wraps an external-collaborator failure with the stage it
// occurred in.
type StageError struct {
	// Stage is the pipeline stage that failed.
	Stage Stage

	// Err is the underlying collaborator error.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}
