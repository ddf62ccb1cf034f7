// Package tool provides research-tool abstractions for workflow stages.
package tool

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the search backend could not serve the query
// (network failure, 5xx, rate limit). Retryable.
var ErrUnavailable = errors.New("search unavailable")

// Result is a single ranked search hit.
type Result struct {
	// Source identifies where the hit came from (URL or channel name).
	Source string `json:"source"`

	// Snippet is the extracted text relevant to the query.
	Snippet string `json:"snippet"`

	// Score is the backend's relevance score, higher is better.
	Score float64 `json:"score"`
}

// Searcher answers a free-text query with ranked results.
//
// Implementations must respect context cancellation and return
// ErrUnavailable (wrapped) for transient backend failures. Result order is
// the backend's ranking; callers needing a stable cross-backend order sort
// after merging.
type Searcher interface {
	// Name identifies the search backend (e.g. "web", "video").
	Name() string

	// Search runs one query and returns ranked results.
	Search(ctx context.Context, query string) ([]Result, error)
}
