package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for tests and single-process runs where durability across
// restarts is not required. Thread-safe. The full contents can be snapshot
// to JSON (MarshalJSON/UnmarshalJSON) for simple file-based persistence.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]StepRecord[S] // runID -> ordered steps
	suspensions map[string]Suspension[S]   // token -> suspension
	consumed    map[string]bool            // token -> consumed
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string][]StepRecord[S]),
		suspensions: make(map[string]Suspension[S]),
		consumed:    make(map[string]bool),
	}
}

// SaveStep records a step in the run's history, replacing any earlier
// record for the same step number.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := StepRecord[S]{
		Step:      step,
		NodeID:    nodeID,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}
	records := m.steps[runID]
	for i := range records {
		if records[i].Step == step {
			records[i] = rec
			return nil
		}
	}
	m.steps[runID] = append(records, rec)
	return nil
}

// LoadLatest returns the record with the highest step number for the run.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		var zero S
		return zero, 0, ErrNotFound
	}

	latest := records[0]
	for _, r := range records[1:] {
		if r.Step > latest.Step {
			latest = r
		}
	}
	return latest.State, latest.Step, nil
}

// SaveSuspension records a suspension keyed by its token. Re-saving a token
// resets its consumed flag, so a run re-suspended under a previously used
// token accepts a fresh resume.
func (m *MemStore[S]) SaveSuspension(_ context.Context, susp Suspension[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.suspensions[susp.Token] = susp
	delete(m.consumed, susp.Token)
	return nil
}

// LoadSuspension retrieves a suspension without consuming its token.
func (m *MemStore[S]) LoadSuspension(_ context.Context, token string) (Suspension[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	susp, ok := m.suspensions[token]
	if !ok {
		var zero Suspension[S]
		return zero, ErrNotFound
	}
	return susp, nil
}

// ConsumeToken marks a token as used, exactly once.
func (m *MemStore[S]) ConsumeToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.suspensions[token]; !ok {
		return ErrNotFound
	}
	if m.consumed[token] {
		return ErrTokenConsumed
	}
	m.consumed[token] = true
	return nil
}

// DeleteRun removes every record belonging to the run.
func (m *MemStore[S]) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.steps, runID)
	for token, susp := range m.suspensions {
		if susp.RunID == runID {
			delete(m.suspensions, token)
			delete(m.consumed, token)
		}
	}
	return nil
}

// PurgeBefore removes records created before the cutoff.
func (m *MemStore[S]) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for runID, records := range m.steps {
		kept := records[:0]
		for _, r := range records {
			if r.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(m.steps, runID)
		} else {
			m.steps[runID] = kept
		}
	}
	for token, susp := range m.suspensions {
		if susp.CreatedAt.Before(cutoff) {
			delete(m.suspensions, token)
			delete(m.consumed, token)
			removed++
		}
	}
	return removed, nil
}

// memSnapshot is the JSON shape of a MemStore.
type memSnapshot[S any] struct {
	Steps       map[string][]StepRecord[S] `json:"steps"`
	Suspensions map[string]Suspension[S]   `json:"suspensions"`
	Consumed    map[string]bool            `json:"consumed"`
}

// MarshalJSON serializes the store's full contents.
//
// Useful for saving a run across process restarts without a database:
//
//	data, _ := json.Marshal(st)
//	os.WriteFile("runs.json", data, 0o644)
func (m *MemStore[S]) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return json.Marshal(memSnapshot[S]{
		Steps:       m.steps,
		Suspensions: m.suspensions,
		Consumed:    m.consumed,
	})
}

// UnmarshalJSON replaces the store's contents with a previously serialized
// snapshot.
func (m *MemStore[S]) UnmarshalJSON(data []byte) error {
	var snap memSnapshot[S]
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps = snap.Steps
	m.suspensions = snap.Suspensions
	m.consumed = snap.Consumed
	if m.steps == nil {
		m.steps = make(map[string][]StepRecord[S])
	}
	if m.suspensions == nil {
		m.suspensions = make(map[string]Suspension[S])
	}
	if m.consumed == nil {
		m.consumed = make(map[string]bool)
	}
	return nil
}
