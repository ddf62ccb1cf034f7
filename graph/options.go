package graph

import "time"

// Options configures Engine execution behavior. Zero values are valid; the
// engine falls back to sensible defaults.
type Options struct {
	// MaxSteps limits workflow execution to prevent runaway loops.
	// If 0, no limit is enforced.
	MaxSteps int

	// DefaultNodeTimeout bounds the execution time of nodes that do not
	// carry their own NodePolicy.Timeout. If 0, nodes run unbounded.
	DefaultNodeTimeout time.Duration

	// DefaultRetry applies to nodes without their own NodePolicy.Retry.
	// If nil, nodes are not retried.
	DefaultRetry *RetryPolicy

	// Metrics, when non-nil, receives Prometheus observations for every
	// step, retry, suspension, and resume.
	Metrics *Metrics
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := graph.New(reducer, st, emitter,
//	    graph.WithMaxSteps(50),
//	    graph.WithDefaultNodeTimeout(30*time.Second),
//	)
type Option func(*Options)

// WithMaxSteps limits workflow execution to n steps.
//
// Workflow loops are supported; use MaxSteps as the backstop for a loop
// whose conditional exit is misconfigured. For this pipeline's topology a
// bound of stages x (max revisions + 1) is plenty.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithDefaultNodeTimeout sets the engine-wide node timeout. Individual
// nodes override it via NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

// WithDefaultRetry sets the retry policy applied to nodes that do not carry
// their own.
func WithDefaultRetry(rp *RetryPolicy) Option {
	return func(o *Options) { o.DefaultRetry = rp }
}

// WithMetrics attaches a Prometheus metrics collector to the engine.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}
