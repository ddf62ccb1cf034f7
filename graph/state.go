package graph

import (
	"encoding/json"
	"fmt"
)

// deepCopy creates an independent copy of state S via a JSON round-trip.
//
// Works for any JSON-serializable state: primitives, structs with exported
// fields, slices, and maps. The engine uses it to detach the state snapshot
// stored in a Suspension from the value the caller still holds, so nothing
// can alias into a persisted checkpoint.
func deepCopy[S any](state S) (S, error) {
	var copied S

	data, err := json.Marshal(state)
	if err != nil {
		return copied, fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := json.Unmarshal(data, &copied); err != nil {
		return copied, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return copied, nil
}
