// Package search runs web searches for contact verification. A Chain asks
// a primary engine first and tops up from fallback engines when the
// primary returns too few hits.
package search

import (
	"context"
	"strings"

	"github.com/sells-group/posting-cli/internal/model"
)

// Searcher runs a query against one engine.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
	Name() string
}

// Dedup drops results whose URL was already seen, keeping the first
// occurrence and the original order.
func Dedup(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		key := urlKey(r.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func urlKey(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}
