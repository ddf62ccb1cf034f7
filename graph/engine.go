// Package graph provides the workflow execution engine for contentflow-go.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/contentflow-go/graph/emit"
	"github.com/dshills/contentflow-go/graph/store"
)

// Reducer merges a node's partial state update into the previous state and
// returns the new state. It must be deterministic and must not mutate prev
// in place beyond returning it.
type Reducer[S any] func(prev, delta S) S

// Status classifies the result of advancing a workflow.
type Status int

const (
	// Continue means a node committed and execution can advance to the
	// next node. Only returned by Step; Run keeps going internally.
	Continue Status = iota

	// Interrupted means the run suspended for human input; the Outcome
	// carries the token and prompt.
	Interrupted

	// Finished means the workflow reached a terminal node.
	Finished

	// Failed means a node failed after exhausting its retries, or the
	// engine hit a hard limit. The last persisted state is intact.
	Failed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Interrupted:
		return "interrupted"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of advancing a workflow run.
type Outcome[S any] struct {
	// Status classifies the outcome.
	Status Status

	// State is the state after the last committed step. For Failed it is
	// the last successfully persisted state.
	State S

	// Step is the step number of the last committed step.
	Step int

	// NodeID is the node that just executed (or suspended).
	NodeID string

	// NextID is the node Run would execute next. Set for Continue.
	NextID string

	// Token references the persisted suspension. Set for Interrupted.
	Token string

	// Prompt is the question for the human. Set for Interrupted.
	Prompt string

	// Reason classifies the suspension. Set for Interrupted.
	Reason InterruptReason

	// Err is the failure cause. Set for Failed.
	Err error
}

// Engine sequences stateful workflow execution with durable suspensions.
//
// The engine owns the graph topology (nodes and edges), executes nodes
// strictly sequentially, merges their deltas through the reducer, persists
// state after every step, and suspends/resumes runs around human input.
//
// Type parameter S is the state type shared across the workflow.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	policies  map[string]*NodePolicy
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	opts    Options
}

// New creates an Engine.
//
// reducer and st are required for Run; emitter may be nil to disable event
// emission. Validation is deferred to Run so graphs can be assembled in any
// order.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option) *Engine[S] {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]*NodePolicy),
		store:    st,
		emitter:  emitter,
		opts:     o,
	}
}

// Add registers a node under a unique ID.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = node
	return nil
}

// SetPolicy attaches a per-node execution policy (timeout, retry).
func (e *Engine[S]) SetPolicy(nodeID string, policy *NodePolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	if policy != nil && policy.Retry != nil {
		if err := policy.Retry.Validate(); err != nil {
			return err
		}
	}
	e.policies[nodeID] = policy
	return nil
}

// StartAt sets the entry point for workflow execution.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = nodeID
	return nil
}

// Connect creates an edge between two nodes. A nil predicate makes the edge
// unconditional. Explicit NodeResult.Route takes precedence over edges.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run executes the workflow from the start node until it finishes, fails,
// or suspends for human input.
//
// State is persisted after every committed step; a Failed outcome never
// clobbers the last good state. The returned error is non-nil exactly when
// the outcome status is Failed.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (Outcome[S], error) {
	if err := e.validate(); err != nil {
		var zero Outcome[S]
		return zero, err
	}
	return e.runFrom(ctx, runID, initial, e.startNode, 0)
}

// Step advances the workflow by exactly one node and returns the outcome.
//
// Callers that drive execution themselves (instead of using Run) pass back
// Outcome.NextID and Outcome.Step on the following call.
func (e *Engine[S]) Step(ctx context.Context, runID string, step int, nodeID string, state S) (Outcome[S], error) {
	if err := e.validate(); err != nil {
		var zero Outcome[S]
		return zero, err
	}
	out := e.stepOnce(ctx, runID, state, nodeID, step)
	if out.Status == Failed {
		return out, out.Err
	}
	return out, nil
}

// Resume continues a suspended run with the supplied human input.
//
// The input is handed to the suspended node before the token is touched: a
// rejected input (or a non-resumable node) leaves the token live so the
// caller can retry with corrected input. The token is consumed atomically
// only once the node accepts, immediately before the resumed step commits;
// presenting it again after that fails with ErrStaleToken, so a replayed
// resume can never double-apply input. Execution then continues until the
// next suspension or completion.
func (e *Engine[S]) Resume(ctx context.Context, token string, input any) (Outcome[S], error) {
	var zero Outcome[S]

	if err := e.validate(); err != nil {
		return zero, err
	}

	susp, err := e.store.LoadSuspension(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		e.opts.Metrics.countResume("stale")
		return zero, ErrStaleToken
	}
	if err != nil {
		return zero, &EngineError{Message: "failed to load suspension: " + err.Error(), Code: "STORE_ERROR"}
	}

	e.mu.RLock()
	node, exists := e.nodes[susp.NodeID]
	e.mu.RUnlock()
	if !exists {
		return zero, &EngineError{Message: "suspended node not found: " + susp.NodeID, Code: "NODE_NOT_FOUND"}
	}
	resumable, ok := node.(Resumable[S])
	if !ok {
		return zero, fmt.Errorf("node %s: %w", susp.NodeID, ErrNotResumable)
	}

	result := resumable.Resume(ctx, susp.State, input)
	if result.Err != nil {
		out := Outcome[S]{Status: Failed, State: susp.State, Step: susp.Step, NodeID: susp.NodeID, Err: result.Err}
		return out, result.Err
	}

	if err := e.store.ConsumeToken(ctx, token); err != nil {
		if errors.Is(err, store.ErrTokenConsumed) || errors.Is(err, store.ErrNotFound) {
			e.opts.Metrics.countResume("stale")
			return zero, ErrStaleToken
		}
		return zero, &EngineError{Message: "failed to consume token: " + err.Error(), Code: "STORE_ERROR"}
	}

	state := e.reducer(susp.State, result.Delta)
	step := susp.Step + 1
	if err := e.saveStep(ctx, susp.RunID, step, susp.NodeID, state); err != nil {
		out := Outcome[S]{Status: Failed, State: susp.State, Step: susp.Step, NodeID: susp.NodeID, Err: err}
		return out, err
	}
	e.opts.Metrics.countResume("ok")
	e.emitEvent(emit.Event{RunID: susp.RunID, Step: step, NodeID: susp.NodeID, Msg: "run resumed",
		Meta: map[string]interface{}{"token": token}})

	if result.Interrupt != nil {
		out, err2 := e.suspend(ctx, susp.RunID, step, susp.NodeID, state, result.Interrupt)
		return out, err2
	}
	if result.Route.Terminal {
		e.opts.Metrics.countRun("finished")
		return Outcome[S]{Status: Finished, State: state, Step: step, NodeID: susp.NodeID}, nil
	}

	next := result.Route.To
	if next == "" {
		next = e.evaluateEdges(susp.NodeID, state)
	}
	if next == "" {
		err := &EngineError{Message: "no valid route from node: " + susp.NodeID, Code: "NO_ROUTE"}
		return Outcome[S]{Status: Failed, State: state, Step: step, NodeID: susp.NodeID, Err: err}, err
	}
	return e.runFrom(ctx, susp.RunID, state, next, step)
}

// validate checks that the engine can execute.
func (e *Engine[S]) validate() error {
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}
	if _, exists := e.nodes[e.startNode]; !exists {
		return &EngineError{Message: "start node does not exist: " + e.startNode, Code: "NODE_NOT_FOUND"}
	}
	return nil
}

// runFrom drives the sequential execution loop beginning at nodeID.
func (e *Engine[S]) runFrom(ctx context.Context, runID string, state S, nodeID string, step int) (Outcome[S], error) {
	e.opts.Metrics.runStarted()
	defer e.opts.Metrics.runStopped()

	current := nodeID
	for {
		if e.opts.MaxSteps > 0 && step >= e.opts.MaxSteps {
			e.opts.Metrics.countRun("failed")
			out := Outcome[S]{Status: Failed, State: state, Step: step, NodeID: current, Err: ErrMaxStepsExceeded}
			return out, ErrMaxStepsExceeded
		}

		select {
		case <-ctx.Done():
			out := Outcome[S]{Status: Failed, State: state, Step: step, NodeID: current, Err: ctx.Err()}
			return out, ctx.Err()
		default:
		}

		out := e.stepOnce(ctx, runID, state, current, step)
		switch out.Status {
		case Continue:
			state = out.State
			step = out.Step
			current = out.NextID
		case Failed:
			e.opts.Metrics.countRun("failed")
			return out, out.Err
		case Finished:
			e.opts.Metrics.countRun("finished")
			return out, nil
		default: // Interrupted
			return out, nil
		}
	}
}

// stepOnce executes a single node with retry and timeout, commits the merged
// state, and resolves routing.
func (e *Engine[S]) stepOnce(ctx context.Context, runID string, state S, nodeID string, step int) Outcome[S] {
	e.mu.RLock()
	node, exists := e.nodes[nodeID]
	policy := e.policies[nodeID]
	e.mu.RUnlock()

	if !exists {
		err := &EngineError{Message: "node not found during execution: " + nodeID, Code: "NODE_NOT_FOUND"}
		return Outcome[S]{Status: Failed, State: state, Step: step, NodeID: nodeID, Err: err}
	}

	result, err := e.executeWithRetry(ctx, runID, node, nodeID, state, policy, step)
	if err != nil {
		return Outcome[S]{Status: Failed, State: state, Step: step, NodeID: nodeID, Err: err}
	}

	merged := e.reducer(state, result.Delta)
	step++
	if err := e.saveStep(ctx, runID, step, nodeID, merged); err != nil {
		return Outcome[S]{Status: Failed, State: state, Step: step - 1, NodeID: nodeID, Err: err}
	}
	e.emitEvent(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node completed"})

	if result.Interrupt != nil {
		out, err := e.suspend(ctx, runID, step, nodeID, merged, result.Interrupt)
		if err != nil {
			return Outcome[S]{Status: Failed, State: merged, Step: step, NodeID: nodeID, Err: err}
		}
		return out
	}

	if result.Route.Terminal {
		return Outcome[S]{Status: Finished, State: merged, Step: step, NodeID: nodeID}
	}

	next := result.Route.To
	if next == "" {
		next = e.evaluateEdges(nodeID, merged)
	}
	if next == "" {
		err := &EngineError{Message: "no valid route from node: " + nodeID, Code: "NO_ROUTE"}
		return Outcome[S]{Status: Failed, State: merged, Step: step, NodeID: nodeID, Err: err}
	}
	return Outcome[S]{Status: Continue, State: merged, Step: step, NodeID: nodeID, NextID: next}
}

// executeWithRetry runs a node under its timeout, retrying transient
// failures with exponential backoff. Retries never leak out of the step
// boundary: either a clean result is returned or the final error after
// attempts exhaust.
func (e *Engine[S]) executeWithRetry(
	ctx context.Context,
	runID string,
	node Node[S],
	nodeID string,
	state S,
	policy *NodePolicy,
	step int,
) (NodeResult[S], error) {
	retry := e.opts.DefaultRetry
	if policy != nil && policy.Retry != nil {
		retry = policy.Retry
	}
	attempts := 1
	if retry != nil {
		attempts = retry.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		started := time.Now()
		result := runNodeWithTimeout(ctx, node, nodeID, state, policy, e.opts.DefaultNodeTimeout)
		if result.Err == nil {
			e.opts.Metrics.observeNode(nodeID, "success", time.Since(started))
			return result, nil
		}
		e.opts.Metrics.observeNode(nodeID, "error", time.Since(started))
		lastErr = result.Err

		if retry == nil || retry.Retryable == nil || !retry.Retryable(result.Err) {
			break
		}
		if attempt == attempts-1 {
			lastErr = fmt.Errorf("%w: %w", ErrMaxAttemptsExceeded, result.Err)
			break
		}

		e.opts.Metrics.countRetry(nodeID)
		e.emitEvent(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node retry",
			Meta: map[string]interface{}{"attempt": attempt + 1, "error": result.Err.Error()}})

		select {
		case <-time.After(computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay)):
		case <-ctx.Done():
			return NodeResult[S]{}, ctx.Err()
		}
	}

	var zero NodeResult[S]
	return zero, &NodeError{
		Message: "node execution failed",
		Code:    "NODE_FAILED",
		NodeID:  nodeID,
		Cause:   lastErr,
	}
}

// suspend persists the run for human input and returns the Interrupted
// outcome. The stored state is deep-copied so the checkpoint cannot alias
// state the caller still holds.
func (e *Engine[S]) suspend(ctx context.Context, runID string, step int, nodeID string, state S, intr *Interrupt) (Outcome[S], error) {
	var zero Outcome[S]

	snap, err := deepCopy(state)
	if err != nil {
		return zero, &EngineError{Message: "failed to snapshot state: " + err.Error(), Code: "SNAPSHOT_FAILED"}
	}

	token := suspendToken(runID, step, nodeID, intr.Reason)
	susp := store.Suspension[S]{
		Version:   store.SchemaVersion,
		Token:     token,
		RunID:     runID,
		Step:      step,
		NodeID:    nodeID,
		Reason:    string(intr.Reason),
		Prompt:    intr.Prompt,
		State:     snap,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.SaveSuspension(ctx, susp); err != nil {
		return zero, &EngineError{Message: "failed to save suspension: " + err.Error(), Code: "STORE_ERROR"}
	}

	e.opts.Metrics.countSuspension(intr.Reason)
	e.emitEvent(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "run suspended",
		Meta: map[string]interface{}{"reason": string(intr.Reason), "token": token}})

	return Outcome[S]{
		Status: Interrupted,
		State:  state,
		Step:   step,
		NodeID: nodeID,
		Token:  token,
		Prompt: intr.Prompt,
		Reason: intr.Reason,
	}, nil
}

func (e *Engine[S]) saveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := e.store.SaveStep(ctx, runID, step, nodeID, state); err != nil {
		return &EngineError{Message: "failed to save step: " + err.Error(), Code: "STORE_ERROR"}
	}
	return nil
}

func (e *Engine[S]) emitEvent(ev emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// evaluateEdges finds the first matching edge from the given node. A nil
// predicate always matches; first match wins.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}
