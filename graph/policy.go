package graph

import (
	"math/rand"
	"time"
)

// NodePolicy configures execution behavior for a single node.
//
// If a field is zero, the engine-wide default from Options applies.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node.
	// If zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration

	// Retry specifies automatic retry behavior for transient failures.
	// If nil, Options.DefaultRetry applies; if that is also nil, the node
	// is not retried.
	Retry *RetryPolicy
}

// RetryPolicy defines automatic retry configuration for transient node
// failures. Exponential backoff with jitter spaces out the attempts.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts, including
	// the initial one. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base for exponential backoff between retries.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error warrants another attempt.
	// If nil, no errors are retryable.
	Retryable func(error) bool
}

// Validate checks the RetryPolicy bounds.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff calculates the delay before the next retry:
//
//	delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
//
// attempt is zero-based. Jitter spreads retries from concurrent runs so they
// do not hammer a recovering collaborator in lockstep.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	// Note: math/rand jitter is for retry spacing, not security.
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404
	return delay + jitter
}
