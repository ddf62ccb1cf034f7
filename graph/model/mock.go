package model

import (
	"context"
	"sync"
)

// MockCaller is a deterministic test implementation of Caller.
//
// Configure a sequence of outputs and/or errors; each Invoke consumes the
// next scripted response (the last one repeats once the script runs out).
// All calls are recorded for assertion.
//
//	mock := &model.MockCaller{
//	    Outputs: []model.Output{
//	        {JSON: json.RawMessage(`{"topic":"sustainable fashion"}`)},
//	        {Text: "draft body"},
//	    },
//	}
type MockCaller struct {
	// Outputs is the scripted response sequence.
	Outputs []Output

	// Errs, when non-empty, is consumed in lockstep with Outputs: a
	// non-nil entry is returned instead of the corresponding output.
	Errs []error

	// Err, if set, is returned by every call. Overrides Outputs/Errs.
	Err error

	// Calls records every prompt passed to Invoke.
	Calls []Prompt

	mu    sync.Mutex
	index int
}

// Invoke implements Caller.
func (m *MockCaller) Invoke(ctx context.Context, p Prompt) (Output, error) {
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, p)

	if m.Err != nil {
		return Output{}, m.Err
	}

	idx := m.index
	if idx < len(m.Outputs) || idx < len(m.Errs) {
		m.index++
	}

	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return Output{}, m.Errs[idx]
	}

	if len(m.Outputs) == 0 {
		return Output{}, nil
	}
	if idx >= len(m.Outputs) {
		idx = len(m.Outputs) - 1
	}
	return m.Outputs[idx], nil
}

// CallCount returns how many times Invoke has been called.
func (m *MockCaller) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears recorded calls and rewinds the script.
func (m *MockCaller) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.index = 0
}
