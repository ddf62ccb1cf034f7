// Package model defines the model-caller abstraction and provider adapters.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Shape declares the output form a caller is expected to produce.
type Shape string

const (
	// ShapeText requests free-form prose.
	ShapeText Shape = "text"

	// ShapeJSON requests a single JSON object. Adapters must return the
	// raw object in Output.JSON or fail with a *SchemaError.
	ShapeJSON Shape = "json"
)

// Prompt is a fully rendered request for a language model.
type Prompt struct {
	// System sets the model's role and constraints. May be empty.
	System string

	// User is the rendered task prompt.
	User string

	// Shape is the expected output shape. Adapters use it to request the
	// provider's structured-output mode where one exists.
	Shape Shape
}

// Output is a model response in the requested shape. Exactly one of Text or
// JSON is populated, matching the prompt's Shape.
type Output struct {
	// Text is the free-form response for ShapeText prompts.
	Text string

	// JSON is the raw structured payload for ShapeJSON prompts. Decode it
	// at the call site against an explicit schema; never pass it around
	// untyped.
	JSON json.RawMessage
}

// Caller invokes a language model with a rendered prompt.
//
// Implementations must respect context cancellation and surface failures
// through the package's typed errors so the workflow runner can classify
// them for retry.
type Caller interface {
	Invoke(ctx context.Context, p Prompt) (Output, error)
}

// ErrUnavailable indicates the provider rejected or could not accept the
// request (connection refused, 5xx, rate limited). Retryable.
var ErrUnavailable = errors.New("model unavailable")

// ErrTimeout indicates the request exceeded its deadline. Retryable.
var ErrTimeout = errors.New("model timeout")

// SchemaError indicates the model returned output that does not satisfy the
// requested shape or the expected schema. Not retryable by default: the
// same prompt tends to produce the same malformed answer.
type SchemaError struct {
	// Shape is the shape that was requested.
	Shape Shape

	// Detail describes what was wrong with the output.
	Detail string

	// Cause is the underlying decode error, if any.
	Cause error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("model output does not match shape %q: %s", e.Shape, e.Detail)
}

// Unwrap returns the underlying decode error.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether an error from a Caller is worth retrying.
// Use it as the Retryable predicate in a graph.RetryPolicy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ValidateShape checks that an Output matches the shape its prompt asked
// for. Adapters call it before returning.
func ValidateShape(shape Shape, out Output) error {
	switch shape {
	case ShapeJSON:
		if len(out.JSON) == 0 {
			return &SchemaError{Shape: shape, Detail: "empty structured payload"}
		}
		if !json.Valid(out.JSON) {
			return &SchemaError{Shape: shape, Detail: "payload is not valid JSON"}
		}
	case ShapeText:
		if out.Text == "" {
			return &SchemaError{Shape: shape, Detail: "empty text response"}
		}
	}
	return nil
}
