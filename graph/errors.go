package graph

import "errors"

// ErrMaxStepsExceeded indicates the run reached the configured step limit
// without completing. This guards against misconfigured loops.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrStaleToken is returned by Resume when a suspend token has already been
// consumed or does not exist. The persisted run state is left unchanged.
var ErrStaleToken = errors.New("stale suspend token")

// ErrMaxAttemptsExceeded is returned when a node fails more times than its
// retry policy allows. The last attempt's error is wrapped alongside it.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// ErrInvalidRetryPolicy indicates a RetryPolicy with impossible bounds.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrNotResumable is returned by Resume when the suspended node does not
// implement Resumable. This is a construction bug: any node that returns an
// Interrupt must also accept input back.
var ErrNotResumable = errors.New("suspended node does not accept resume input")

// EngineError is a structured error from Engine operations.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
