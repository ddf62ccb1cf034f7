package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

const defaultVideoEndpoint = "https://api.video-search.example.com/v1/search"

// VideoSearcher queries a video/transcript search API and surfaces
// transcript excerpts as search results.
type VideoSearcher struct {
	apiKey     string
	endpoint   string
	maxResults int
	client     *http.Client
}

// NewVideoSearcher creates a video searcher against the default endpoint.
func NewVideoSearcher(apiKey string) *VideoSearcher {
	return &VideoSearcher{
		apiKey:     apiKey,
		endpoint:   defaultVideoEndpoint,
		maxResults: 8,
		client:     &http.Client{},
	}
}

// WithEndpoint overrides the API endpoint. Used in tests against a local
// httptest server.
func (v *VideoSearcher) WithEndpoint(endpoint string) *VideoSearcher {
	v.endpoint = endpoint
	return v
}

// Name implements Searcher.
func (v *VideoSearcher) Name() string { return "video" }

// Search implements Searcher.
func (v *VideoSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(v.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("limit", fmt.Sprintf("%d", v.maxResults))
	q.Set("transcripts", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: video search returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Videos []struct {
			URL        string  `json:"url"`
			Transcript string  `json:"transcript"`
			Relevance  float64 `json:"relevance"`
		} `json:"videos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode video response: %w", err)
	}

	results := make([]Result, 0, len(body.Videos))
	for _, video := range body.Videos {
		results = append(results, Result{
			Source:  video.URL,
			Snippet: video.Transcript,
			Score:   video.Relevance,
		})
	}
	return results, nil
}
