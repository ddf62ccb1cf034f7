package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"valid", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"negative attempts", RetryPolicy{MaxAttempts: -1}, true},
		{"max below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Fatalf("expected ErrInvalidRetryPolicy, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestComputeBackoff(t *testing.T) {
	base := 10 * time.Millisecond
	maxDelay := 40 * time.Millisecond

	for attempt := 0; attempt < 6; attempt++ {
		d := computeBackoff(attempt, base, maxDelay)

		expected := base * (1 << attempt)
		if expected > maxDelay {
			expected = maxDelay
		}
		if d < expected {
			t.Errorf("attempt %d: delay %v below exponential floor %v", attempt, d, expected)
		}
		if d >= expected+base {
			t.Errorf("attempt %d: delay %v exceeds floor plus jitter bound", attempt, d)
		}
	}

	if d := computeBackoff(3, 0, maxDelay); d != 0 {
		t.Errorf("zero base should yield zero delay, got %v", d)
	}
}

func TestSetPolicyValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if err := eng.Add("n", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Route: Stop()}
	})); err != nil {
		t.Fatal(err)
	}

	if err := eng.SetPolicy("ghost", &NodePolicy{}); err == nil {
		t.Error("expected error for unknown node")
	}
	if err := eng.SetPolicy("n", &NodePolicy{Retry: &RetryPolicy{MaxAttempts: 0}}); !errors.Is(err, ErrInvalidRetryPolicy) {
		t.Errorf("expected ErrInvalidRetryPolicy, got %v", err)
	}
	if err := eng.SetPolicy("n", &NodePolicy{Retry: &RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}}); err != nil {
		t.Errorf("valid policy rejected: %v", err)
	}
}

func TestNodeTimeout(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	slow := NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		select {
		case <-time.After(time.Second):
			return NodeResult[testState]{Route: Stop()}
		case <-ctx.Done():
			return NodeResult[testState]{}
		}
	})
	if err := eng.Add("slow", slow); err != nil {
		t.Fatal(err)
	}
	if err := eng.SetPolicy("slow", &NodePolicy{Timeout: 20 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("slow"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err := eng.Run(context.Background(), "run-timeout", testState{})
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}

	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != "NODE_TIMEOUT" {
		t.Errorf("expected NODE_TIMEOUT engine error, got %v", err)
	}
}

func TestNodeTimeoutResolution(t *testing.T) {
	policy := &NodePolicy{Timeout: time.Second}
	if got := nodeTimeout(policy, time.Minute); got != time.Second {
		t.Errorf("policy timeout should win, got %v", got)
	}
	if got := nodeTimeout(nil, time.Minute); got != time.Minute {
		t.Errorf("default should apply without policy, got %v", got)
	}
	if got := nodeTimeout(&NodePolicy{}, 0); got != 0 {
		t.Errorf("expected unbounded, got %v", got)
	}
}
