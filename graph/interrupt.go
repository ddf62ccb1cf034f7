package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// InterruptReason classifies why a run suspended.
type InterruptReason string

const (
	// ReasonNeedsFeedback indicates the run is waiting for a human reviewer
	// to comment on or accept produced content.
	ReasonNeedsFeedback InterruptReason = "needs_feedback"

	// ReasonNeedsClarification indicates the run is waiting for the human to
	// supply information the workflow could not derive on its own.
	ReasonNeedsClarification InterruptReason = "needs_clarification"
)

// Interrupt is a node's request to suspend the run and collect human input.
//
// The engine commits the node's delta first, then persists a Suspension
// containing the full post-delta state, so a resume after an arbitrarily
// long delay (or a process restart) continues exactly where the run left
// off. While suspended, no resources are held; the persisted record is the
// sole carryover.
type Interrupt struct {
	// Reason classifies the suspension.
	Reason InterruptReason

	// Prompt is the question or instruction shown to the human.
	Prompt string
}

// suspendToken derives a stable, unguessable-enough token for a suspension.
//
// The token is a SHA-256 over the run identity at the suspension point. It
// only needs to be unique per (run, step); replay protection comes from the
// store's consume-once semantics, not from token secrecy.
func suspendToken(runID string, step int, nodeID string, reason InterruptReason) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s", runID, step, nodeID, reason)
	return hex.EncodeToString(h.Sum(nil))
}
