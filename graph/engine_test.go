package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dshills/contentflow-go/graph/emit"
	"github.com/dshills/contentflow-go/graph/store"
)

type testState struct {
	Value   string   `json:"value"`
	Counter int      `json:"counter"`
	Log     []string `json:"log"`
}

func testReducer(prev, delta testState) testState {
	if delta.Value != "" {
		prev.Value = delta.Value
	}
	prev.Counter += delta.Counter
	prev.Log = append(prev.Log, delta.Log...)
	return prev
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine[testState], *store.MemStore[testState], *emit.BufferedEmitter) {
	t.Helper()
	st := store.NewMemStore[testState]()
	emitter := emit.NewBufferedEmitter()
	return New(testReducer, st, emitter, opts...), st, emitter
}

func TestEngineRunLinear(t *testing.T) {
	eng, st, emitter := newTestEngine(t)

	for _, id := range []string{"a", "b", "c"} {
		id := id
		node := NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
			r := NodeResult[testState]{Delta: testState{Counter: 1, Log: []string{id}}}
			if id == "c" {
				r.Route = Stop()
			}
			return r
		})
		if err := eng.Add(id, node); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	if err := eng.Connect("a", "b", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := eng.Connect("b", "c", nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := eng.StartAt("a"); err != nil {
		t.Fatalf("StartAt: %v", err)
	}

	out, err := eng.Run(context.Background(), "run-1", testState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != Finished {
		t.Fatalf("expected Finished, got %v", out.Status)
	}
	if out.State.Counter != 3 {
		t.Errorf("expected counter 3, got %d", out.State.Counter)
	}
	if len(out.State.Log) != 3 || out.State.Log[2] != "c" {
		t.Errorf("unexpected log: %v", out.State.Log)
	}
	if out.Step != 3 {
		t.Errorf("expected step 3, got %d", out.Step)
	}

	state, step, err := st.LoadLatest(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if step != 3 || state.Counter != 3 {
		t.Errorf("persisted record mismatch: step=%d counter=%d", step, state.Counter)
	}
	if got := len(emitter.HistoryByMsg("run-1", "node completed")); got != 3 {
		t.Errorf("expected 3 completion events, got %d", got)
	}
}

func TestEngineConditionalEdges(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	passthrough := func(delta testState) NodeFunc[testState] {
		return func(ctx context.Context, s testState) NodeResult[testState] {
			return NodeResult[testState]{Delta: delta}
		}
	}
	terminal := NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Route: Stop()}
	})

	if err := eng.Add("check", passthrough(testState{Counter: 5})); err != nil {
		t.Fatal(err)
	}
	if err := eng.Add("high", terminal); err != nil {
		t.Fatal(err)
	}
	if err := eng.Add("low", terminal); err != nil {
		t.Fatal(err)
	}
	if err := eng.Connect("check", "high", func(s testState) bool { return s.Counter >= 3 }); err != nil {
		t.Fatal(err)
	}
	if err := eng.Connect("check", "low", nil); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("check"); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Run(context.Background(), "run-cond", testState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.NodeID != "high" {
		t.Errorf("expected edge to route to high, got %s", out.NodeID)
	}
}

func TestEngineMaxSteps(t *testing.T) {
	eng, _, _ := newTestEngine(t, WithMaxSteps(5))

	loop := NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Counter: 1}, Route: Goto("loop")}
	})
	if err := eng.Add("loop", loop); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("loop"); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Run(context.Background(), "run-loop", testState{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
	}
	if out.Status != Failed {
		t.Errorf("expected Failed, got %v", out.Status)
	}
	if out.State.Counter != 5 {
		t.Errorf("expected 5 committed steps, got %d", out.State.Counter)
	}
}

func TestEngineFailurePreservesState(t *testing.T) {
	eng, st, _ := newTestEngine(t)

	boom := errors.New("boom")
	if err := eng.Add("good", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Value: "committed", Counter: 1}}
	})); err != nil {
		t.Fatal(err)
	}
	if err := eng.Add("bad", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Err: boom}
	})); err != nil {
		t.Fatal(err)
	}
	if err := eng.Connect("good", "bad", nil); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("good"); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Run(context.Background(), "run-fail", testState{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected cause to surface, got %v", err)
	}
	if out.Status != Failed {
		t.Errorf("expected Failed, got %v", out.Status)
	}

	state, step, loadErr := st.LoadLatest(context.Background(), "run-fail")
	if loadErr != nil {
		t.Fatalf("LoadLatest: %v", loadErr)
	}
	if step != 1 || state.Value != "committed" {
		t.Errorf("failed step clobbered state: step=%d value=%q", step, state.Value)
	}
}

type reviewNode struct{}

func (reviewNode) Run(ctx context.Context, s testState) NodeResult[testState] {
	return NodeResult[testState]{
		Delta:     testState{Log: []string{"suspended"}},
		Interrupt: &Interrupt{Reason: ReasonNeedsFeedback, Prompt: "approve?"},
	}
}

func (reviewNode) Resume(ctx context.Context, s testState, input any) NodeResult[testState] {
	text, _ := input.(string)
	return NodeResult[testState]{
		Delta: testState{Value: text, Log: []string{"resumed"}},
		Route: Goto("done"),
	}
}

func buildInterruptGraph(t *testing.T, eng *Engine[testState]) {
	t.Helper()
	if err := eng.Add("review", reviewNode{}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Add("done", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Counter: 1}, Route: Stop()}
	})); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("review"); err != nil {
		t.Fatal(err)
	}
}

func TestEngineInterruptAndResume(t *testing.T) {
	eng, st, emitter := newTestEngine(t)
	buildInterruptGraph(t, eng)

	out, err := eng.Run(context.Background(), "run-intr", testState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != Interrupted {
		t.Fatalf("expected Interrupted, got %v", out.Status)
	}
	if out.Token == "" {
		t.Fatal("expected a suspend token")
	}
	if out.Prompt != "approve?" {
		t.Errorf("unexpected prompt: %q", out.Prompt)
	}
	if out.Reason != ReasonNeedsFeedback {
		t.Errorf("unexpected reason: %q", out.Reason)
	}

	susp, err := st.LoadSuspension(context.Background(), out.Token)
	if err != nil {
		t.Fatalf("LoadSuspension: %v", err)
	}
	if susp.Version != store.SchemaVersion {
		t.Errorf("expected schema version %d, got %d", store.SchemaVersion, susp.Version)
	}
	if susp.NodeID != "review" {
		t.Errorf("expected suspended node review, got %s", susp.NodeID)
	}

	final, err := eng.Resume(context.Background(), out.Token, "ship it")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if final.Status != Finished {
		t.Fatalf("expected Finished, got %v", final.Status)
	}
	if final.State.Value != "ship it" {
		t.Errorf("resume input not merged: %q", final.State.Value)
	}
	if len(emitter.HistoryByMsg("run-intr", "run resumed")) != 1 {
		t.Error("expected one resume event")
	}
}

func TestEngineResumeStaleToken(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	buildInterruptGraph(t, eng)

	out, err := eng.Run(context.Background(), "run-stale", testState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	first, err := eng.Resume(context.Background(), out.Token, "only once")
	if err != nil {
		t.Fatalf("first Resume: %v", err)
	}

	if _, err := eng.Resume(context.Background(), out.Token, "again"); !errors.Is(err, ErrStaleToken) {
		t.Fatalf("expected ErrStaleToken on replay, got %v", err)
	}
	if first.State.Value != "only once" {
		t.Errorf("replay changed state: %q", first.State.Value)
	}

	if _, err := eng.Resume(context.Background(), "no-such-token", "x"); !errors.Is(err, ErrStaleToken) {
		t.Fatalf("expected ErrStaleToken for unknown token, got %v", err)
	}
}

type strictReviewNode struct{}

func (strictReviewNode) Run(ctx context.Context, s testState) NodeResult[testState] {
	return NodeResult[testState]{
		Interrupt: &Interrupt{Reason: ReasonNeedsFeedback, Prompt: "approve?"},
	}
}

func (strictReviewNode) Resume(ctx context.Context, s testState, input any) NodeResult[testState] {
	text, ok := input.(string)
	if !ok {
		return NodeResult[testState]{Err: fmt.Errorf("expected string input, got %T", input)}
	}
	return NodeResult[testState]{Delta: testState{Value: text}, Route: Stop()}
}

func TestEngineResumeRetryAfterRejectedInput(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if err := eng.Add("review", strictReviewNode{}); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("review"); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Run(context.Background(), "run-reject", testState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A rejected input must not burn the token.
	if _, err := eng.Resume(context.Background(), out.Token, 42); err == nil {
		t.Fatal("expected rejected input to error")
	}

	final, err := eng.Resume(context.Background(), out.Token, "approved")
	if err != nil {
		t.Fatalf("corrected input rejected: %v", err)
	}
	if final.Status != Finished {
		t.Fatalf("expected Finished, got %v", final.Status)
	}
	if final.State.Value != "approved" {
		t.Errorf("corrected input not merged: %q", final.State.Value)
	}

	if _, err := eng.Resume(context.Background(), out.Token, "again"); !errors.Is(err, ErrStaleToken) {
		t.Fatalf("expected ErrStaleToken after successful resume, got %v", err)
	}
}

func TestEngineResumeNotResumable(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if err := eng.Add("pause", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Interrupt: &Interrupt{Reason: ReasonNeedsFeedback, Prompt: "?"}}
	})); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("pause"); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Run(context.Background(), "run-nr", testState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := eng.Resume(context.Background(), out.Token, "x"); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected ErrNotResumable, got %v", err)
	}
}

func TestEngineRetryThenSuccess(t *testing.T) {
	transient := errors.New("transient")
	retry := &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, transient) },
	}
	eng, _, _ := newTestEngine(t, WithDefaultRetry(retry))

	calls := 0
	if err := eng.Add("flaky", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		calls++
		if calls < 3 {
			return NodeResult[testState]{Err: transient}
		}
		return NodeResult[testState]{Delta: testState{Value: "ok"}, Route: Stop()}
	})); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("flaky"); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Run(context.Background(), "run-retry", testState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if out.State.Value != "ok" {
		t.Errorf("unexpected state: %q", out.State.Value)
	}
}

func TestEngineRetryExhausted(t *testing.T) {
	transient := errors.New("transient")
	retry := &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, transient) },
	}
	eng, _, _ := newTestEngine(t, WithDefaultRetry(retry))

	calls := 0
	if err := eng.Add("down", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		calls++
		return NodeResult[testState]{Err: transient}
	})); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("down"); err != nil {
		t.Fatal(err)
	}

	_, err := eng.Run(context.Background(), "run-exhaust", testState{})
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Fatalf("expected ErrMaxAttemptsExceeded, got %v", err)
	}
	if !errors.Is(err, transient) {
		t.Errorf("expected original cause in chain, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	var ne *NodeError
	if !errors.As(err, &ne) {
		t.Fatal("expected a *NodeError")
	}
	if ne.NodeID != "down" {
		t.Errorf("expected failing node in error, got %s", ne.NodeID)
	}
}

func TestEngineNonRetryableFailsFast(t *testing.T) {
	retry := &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   func(err error) bool { return false },
	}
	eng, _, _ := newTestEngine(t, WithDefaultRetry(retry))

	calls := 0
	if err := eng.Add("fatal", NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
		calls++
		return NodeResult[testState]{Err: errors.New("fatal")}
	})); err != nil {
		t.Fatal(err)
	}
	if err := eng.StartAt("fatal"); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.Run(context.Background(), "run-fatal", testState{}); err == nil {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should not retry, got %d attempts", calls)
	}
}

func TestEngineValidation(t *testing.T) {
	t.Run("missing start node", func(t *testing.T) {
		eng, _, _ := newTestEngine(t)
		if _, err := eng.Run(context.Background(), "r", testState{}); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("duplicate node", func(t *testing.T) {
		eng, _, _ := newTestEngine(t)
		n := NodeFunc[testState](func(ctx context.Context, s testState) NodeResult[testState] {
			return NodeResult[testState]{Route: Stop()}
		})
		if err := eng.Add("n", n); err != nil {
			t.Fatal(err)
		}
		if err := eng.Add("n", n); err == nil {
			t.Fatal("expected duplicate node error")
		}
	})

	t.Run("StartAt unknown node", func(t *testing.T) {
		eng, _, _ := newTestEngine(t)
		if err := eng.StartAt("ghost"); err == nil {
			t.Fatal("expected error for unknown start node")
		}
	})
}

func TestSuspendTokenDeterministic(t *testing.T) {
	a := suspendToken("run", 3, "review", ReasonNeedsFeedback)
	b := suspendToken("run", 3, "review", ReasonNeedsFeedback)
	if a != b {
		t.Error("token should be deterministic for identical inputs")
	}
	if a == suspendToken("run", 4, "review", ReasonNeedsFeedback) {
		t.Error("token should vary with step")
	}
	if a == suspendToken("run", 3, "review", ReasonNeedsClarification) {
		t.Error("token should vary with reason")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256 token, got length %d", len(a))
	}
}
