// Package emit provides pluggable observability for workflow execution.
package emit

// Event is an observability event emitted during workflow execution:
// node completions, retries, suspensions, resumes, and failures.
type Event struct {
	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// Step is the sequential step number in the workflow (1-indexed).
	// Zero for run-level events.
	Step int

	// NodeID identifies which node emitted this event. Empty for
	// run-level events.
	NodeID string

	// Msg is a short human-readable description of the event.
	Msg string

	// Meta holds additional structured data. Common keys: "error",
	// "reason", "token", "attempt".
	Meta map[string]interface{}
}
