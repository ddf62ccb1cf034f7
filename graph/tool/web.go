package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const defaultWebEndpoint = "https://google.serper.dev/search"

// WebSearcher queries a Serper-style web search API.
//
//	searcher := tool.NewWebSearcher(os.Getenv("SERPER_API_KEY"))
//	results, err := searcher.Search(ctx, "sustainable fashion trends")
type WebSearcher struct {
	apiKey     string
	endpoint   string
	maxResults int
	client     *http.Client
}

// NewWebSearcher creates a web searcher against the default endpoint.
func NewWebSearcher(apiKey string) *WebSearcher {
	return &WebSearcher{
		apiKey:     apiKey,
		endpoint:   defaultWebEndpoint,
		maxResults: 10,
		client:     &http.Client{},
	}
}

// WithEndpoint overrides the API endpoint. Used in tests against a local
// httptest server.
func (w *WebSearcher) WithEndpoint(endpoint string) *WebSearcher {
	w.endpoint = endpoint
	return w
}

// Name implements Searcher.
func (w *WebSearcher) Name() string { return "web" }

// Search implements Searcher.
func (w *WebSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"q":   query,
		"num": w.maxResults,
		"gl":  "us",
		"hl":  "en",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", w.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: web search returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Organic []struct {
			Link     string  `json:"link"`
			Snippet  string  `json:"snippet"`
			Position float64 `json:"position"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(body.Organic))
	for _, hit := range body.Organic {
		score := 0.0
		if hit.Position > 0 {
			// Position 1 is the best hit.
			score = 1.0 / hit.Position
		}
		results = append(results, Result{
			Source:  hit.Link,
			Snippet: hit.Snippet,
			Score:   score,
		})
	}
	return results, nil
}
