package tool

import (
	"context"
	"sync"
)

// MockSearcher is a scripted Searcher for tests. Successive Search calls
// return the configured result sets in order; the last set repeats once
// exhausted.
type MockSearcher struct {
	SearcherName string
	Results      [][]Result
	Errs         []error
	Err          error

	mu      sync.Mutex
	Queries []string
	index   int
}

// Name implements Searcher.
func (m *MockSearcher) Name() string {
	if m.SearcherName == "" {
		return "mock"
	}
	return m.SearcherName
}

// Search implements Searcher.
func (m *MockSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, query)

	i := m.index
	m.index++

	if i < len(m.Errs) && m.Errs[i] != nil {
		return nil, m.Errs[i]
	}
	if m.Err != nil && i >= len(m.Results) {
		return nil, m.Err
	}

	if len(m.Results) == 0 {
		return nil, nil
	}
	if i >= len(m.Results) {
		i = len(m.Results) - 1
	}
	return m.Results[i], nil
}

// CallCount returns the number of Search calls made.
func (m *MockSearcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// Reset clears recorded queries and rewinds the script.
func (m *MockSearcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = nil
	m.index = 0
}
