package emit

import "sync"

// BufferedEmitter stores events in memory, organized by run ID.
//
// Intended for tests and debugging: run a workflow, then inspect its event
// history. Everything is held in memory, so clear finished runs in
// long-lived processes.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event. Safe for concurrent use.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns a copy of all events for a run, in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryByMsg returns the run's events whose Msg matches exactly.
func (b *BufferedEmitter) HistoryByMsg(runID, msg string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.events[runID] {
		if ev.Msg == msg {
			out = append(out, ev)
		}
	}
	return out
}

// Clear removes the stored events for a run.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, runID)
}
