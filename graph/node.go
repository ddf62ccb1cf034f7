package graph

import "context"

// Node is a processing unit in the workflow graph.
//
// A node receives the current state, performs its work (usually one call to
// an external collaborator), and returns a NodeResult carrying a state delta,
// a routing decision, and optionally an interrupt request. Nodes never mutate
// the state they are given; all changes flow through the delta and the
// engine's reducer.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// Resumable is implemented by nodes that can suspend execution and later
// accept out-of-band human input.
//
// When a node returns a NodeResult with a non-nil Interrupt, the engine
// persists the run and stops. Engine.Resume later locates the suspended node
// and calls Resume with the human input; the returned NodeResult is applied
// exactly like a normal step result. Resume must merge the input into the
// delta rather than mutating state, so that replaying a consumed token can
// never double-apply input.
type Resumable[S any] interface {
	Node[S]

	// Resume merges human input collected during a suspension and decides
	// where execution continues.
	Resume(ctx context.Context, state S, input any) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged with the current state using the configured reducer.
	Delta S

	// Route specifies the next step in workflow execution.
	// Use Stop() for terminal nodes or Goto(id) for explicit routing;
	// leave zero to fall back to edge-based routing.
	Route Next

	// Interrupt, when non-nil, asks the engine to suspend the run after
	// committing Delta. The engine persists a Suspension and returns an
	// Interrupted outcome carrying a resume token.
	Interrupt *Interrupt

	// Err halts the workflow unless the node's retry policy classifies it
	// as retryable and attempts remain.
	Err error
}

// Next specifies where execution goes after a node completes.
type Next struct {
	// To is the next node to execute. Mutually exclusive with Terminal.
	To string

	// Terminal indicates workflow execution should stop.
	Terminal bool
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	n := NodeFunc[MyState](func(ctx context.Context, s MyState) NodeResult[MyState] {
//	    return NodeResult[MyState]{
//	        Delta: MyState{Result: "processed"},
//	        Route: Stop(),
//	    }
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError is a structured error produced during node execution.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
