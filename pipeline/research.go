package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/contentflow-go/graph/tool"
)

// gatherFindings fans the query out across all searchers in parallel and
// merges the results into a deterministic ordering. The merge is the only
// synchronization point: result ordering depends solely on the result
// contents, never on which searcher finished first.
//
// A searcher that fails is skipped as long as at least one succeeds; the
// stage only fails when every searcher does.
func gatherFindings(ctx context.Context, searchers []tool.Searcher, query string) ([]Finding, error) {
	type lookup struct {
		results []tool.Result
		err     error
	}

	lookups := make([]lookup, len(searchers))
	var wg sync.WaitGroup
	for i, s := range searchers {
		wg.Add(1)
		go func(i int, s tool.Searcher) {
			defer wg.Done()
			results, err := s.Search(ctx, query)
			lookups[i] = lookup{results: results, err: err}
		}(i, s)
	}
	wg.Wait()

	var results []tool.Result
	var errs []error
	for _, l := range lookups {
		if l.err != nil {
			errs = append(errs, l.err)
			continue
		}
		results = append(results, l.results...)
	}
	if len(results) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return mergeFindings(results), nil
}

// mergeFindings converts raw search results into categorized findings with a
// stable ordering: by source, then descending score, then claim text.
func mergeFindings(results []tool.Result) []Finding {
	findings := make([]Finding, 0, len(results))
	for _, r := range results {
		findings = append(findings, Finding{
			Source:     r.Source,
			Claim:      r.Snippet,
			Category:   classifyFinding(r.Snippet),
			Confidence: r.Score,
		})
	}

	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Claim < b.Claim
	})
	return findings
}

// classifyFinding assigns a category from surface features of the claim
// text. Quotes win over everything; numeric or study language reads as
// surprising; instructional language reads as actionable; the rest is a
// pattern observation.
func classifyFinding(claim string) FindingCategory {
	lower := strings.ToLower(claim)
	switch {
	case strings.Contains(claim, `"`) || strings.Contains(claim, "“"):
		return FindingQuote
	case strings.Contains(lower, "study") || strings.Contains(lower, "survey") ||
		strings.Contains(lower, "%") || strings.Contains(lower, "research shows"):
		return FindingSurprising
	case strings.Contains(lower, "how to") || strings.Contains(lower, "step") ||
		strings.Contains(lower, "you can") || strings.Contains(lower, "tip"):
		return FindingActionable
	default:
		return FindingPattern
	}
}
