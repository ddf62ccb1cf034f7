package graph

// Edge is a connection between two nodes in the workflow graph.
//
// Edges can be unconditional (When == nil, always traversed) or conditional
// (traversed only when the predicate returns true for the current state).
// Explicit routing via NodeResult.Route takes precedence over edges.
//
// Type parameter S is the state type used for predicate evaluation.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID.
	To string

	// When is an optional traversal condition. If nil, the edge is
	// unconditional.
	When Predicate[S]
}

// Predicate evaluates state to decide whether an edge should be traversed.
//
// Predicates must be pure: deterministic and free of side effects, so that
// given the same state the selected edge is always the same.
type Predicate[S any] func(state S) bool
