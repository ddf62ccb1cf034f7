package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type docState struct {
	Title    string `json:"title"`
	Revision int    `json:"revision"`
}

// storeContract exercises the Store interface behaviors every implementation
// must satisfy.
func storeContract(t *testing.T, st Store[docState]) {
	ctx := context.Background()

	t.Run("LoadLatest unknown run", func(t *testing.T) {
		_, _, err := st.LoadLatest(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveStep and LoadLatest", func(t *testing.T) {
		if err := st.SaveStep(ctx, "run-a", 1, "draft", docState{Title: "v1", Revision: 0}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}
		if err := st.SaveStep(ctx, "run-a", 2, "review", docState{Title: "v2", Revision: 1}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}

		state, step, err := st.LoadLatest(ctx, "run-a")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if step != 2 || state.Title != "v2" || state.Revision != 1 {
			t.Errorf("unexpected latest: step=%d state=%+v", step, state)
		}
	})

	t.Run("SaveStep overwrites same step", func(t *testing.T) {
		if err := st.SaveStep(ctx, "run-b", 1, "draft", docState{Title: "first"}); err != nil {
			t.Fatal(err)
		}
		if err := st.SaveStep(ctx, "run-b", 1, "draft", docState{Title: "second"}); err != nil {
			t.Fatal(err)
		}
		state, _, err := st.LoadLatest(ctx, "run-b")
		if err != nil {
			t.Fatal(err)
		}
		if state.Title != "second" {
			t.Errorf("expected overwrite, got %q", state.Title)
		}
	})

	t.Run("run isolation", func(t *testing.T) {
		if err := st.SaveStep(ctx, "run-c1", 1, "n", docState{Title: "c1"}); err != nil {
			t.Fatal(err)
		}
		if err := st.SaveStep(ctx, "run-c2", 5, "n", docState{Title: "c2"}); err != nil {
			t.Fatal(err)
		}

		state, step, err := st.LoadLatest(ctx, "run-c1")
		if err != nil {
			t.Fatal(err)
		}
		if step != 1 || state.Title != "c1" {
			t.Errorf("cross-run leakage: step=%d state=%+v", step, state)
		}
	})

	t.Run("suspension round trip", func(t *testing.T) {
		susp := Suspension[docState]{
			Version:   SchemaVersion,
			Token:     "tok-1",
			RunID:     "run-d",
			Step:      4,
			NodeID:    "review",
			Reason:    "needs_feedback",
			Prompt:    "look good?",
			State:     docState{Title: "draft", Revision: 2},
			CreatedAt: time.Now().UTC(),
		}
		if err := st.SaveSuspension(ctx, susp); err != nil {
			t.Fatalf("SaveSuspension: %v", err)
		}

		got, err := st.LoadSuspension(ctx, "tok-1")
		if err != nil {
			t.Fatalf("LoadSuspension: %v", err)
		}
		if got.Version != SchemaVersion || got.RunID != "run-d" || got.NodeID != "review" ||
			got.Reason != "needs_feedback" || got.Prompt != "look good?" ||
			got.State.Title != "draft" || got.State.Revision != 2 {
			t.Errorf("suspension mismatch: %+v", got)
		}
	})

	t.Run("LoadSuspension unknown token", func(t *testing.T) {
		if _, err := st.LoadSuspension(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ConsumeToken exactly once", func(t *testing.T) {
		susp := Suspension[docState]{
			Version: SchemaVersion, Token: "tok-2", RunID: "run-e", Step: 1,
			NodeID: "review", Reason: "needs_feedback", CreatedAt: time.Now().UTC(),
		}
		if err := st.SaveSuspension(ctx, susp); err != nil {
			t.Fatal(err)
		}

		if err := st.ConsumeToken(ctx, "tok-2"); err != nil {
			t.Fatalf("first consume: %v", err)
		}
		if err := st.ConsumeToken(ctx, "tok-2"); !errors.Is(err, ErrTokenConsumed) {
			t.Fatalf("expected ErrTokenConsumed, got %v", err)
		}
		if err := st.ConsumeToken(ctx, "never-saved"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		// Consumption does not delete the record.
		if _, err := st.LoadSuspension(ctx, "tok-2"); err != nil {
			t.Errorf("suspension should survive consumption: %v", err)
		}
	})

	t.Run("re-save resets consumption", func(t *testing.T) {
		susp := Suspension[docState]{
			Version: SchemaVersion, Token: "tok-3", RunID: "run-e2", Step: 2,
			NodeID: "review", Reason: "needs_feedback", CreatedAt: time.Now().UTC(),
		}
		if err := st.SaveSuspension(ctx, susp); err != nil {
			t.Fatal(err)
		}
		if err := st.ConsumeToken(ctx, "tok-3"); err != nil {
			t.Fatalf("first consume: %v", err)
		}

		// A restarted run re-suspends under the same deterministic token.
		susp.Step = 2
		if err := st.SaveSuspension(ctx, susp); err != nil {
			t.Fatal(err)
		}
		if err := st.ConsumeToken(ctx, "tok-3"); err != nil {
			t.Fatalf("re-saved token should be consumable again: %v", err)
		}
	})

	t.Run("DeleteRun", func(t *testing.T) {
		if err := st.SaveStep(ctx, "run-f", 1, "n", docState{Title: "f"}); err != nil {
			t.Fatal(err)
		}
		if err := st.SaveSuspension(ctx, Suspension[docState]{
			Version: SchemaVersion, Token: "tok-f", RunID: "run-f", Step: 1,
			NodeID: "n", Reason: "needs_feedback", CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}

		if err := st.DeleteRun(ctx, "run-f"); err != nil {
			t.Fatalf("DeleteRun: %v", err)
		}
		if _, _, err := st.LoadLatest(ctx, "run-f"); !errors.Is(err, ErrNotFound) {
			t.Errorf("steps not deleted: %v", err)
		}
		if _, err := st.LoadSuspension(ctx, "tok-f"); !errors.Is(err, ErrNotFound) {
			t.Errorf("suspension not deleted: %v", err)
		}
	})

	t.Run("PurgeBefore", func(t *testing.T) {
		old := time.Now().UTC().Add(-48 * time.Hour)
		if err := st.SaveSuspension(ctx, Suspension[docState]{
			Version: SchemaVersion, Token: "tok-old", RunID: "run-g", Step: 1,
			NodeID: "n", Reason: "needs_feedback", CreatedAt: old,
		}); err != nil {
			t.Fatal(err)
		}
		if err := st.SaveSuspension(ctx, Suspension[docState]{
			Version: SchemaVersion, Token: "tok-new", RunID: "run-g", Step: 2,
			NodeID: "n", Reason: "needs_feedback", CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}

		n, err := st.PurgeBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("PurgeBefore: %v", err)
		}
		if n < 1 {
			t.Errorf("expected at least one purged record, got %d", n)
		}
		if _, err := st.LoadSuspension(ctx, "tok-old"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old suspension should be purged: %v", err)
		}
		if _, err := st.LoadSuspension(ctx, "tok-new"); err != nil {
			t.Errorf("recent suspension should survive: %v", err)
		}
	})
}

func TestMemStoreContract(t *testing.T) {
	storeContract(t, NewMemStore[docState]())
}

func TestSQLiteStoreContract(t *testing.T) {
	st, err := NewSQLiteStore[docState](filepath.Join(t.TempDir(), "workflow.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = st.Close() }()

	storeContract(t, st)
}
