package contact

import (
	"slices"
	"strings"

	"github.com/sells-group/posting-cli/internal/model"
)

// priorityDomains earn (len - i) * 10 for the first one found in the URL.
var priorityDomains = []string{
	"scholar.google", "researchgate.net", "linkedin.com", "orcid.org",
	"academia.edu", ".edu", ".ac.", ".org",
}

var academicKeywords = []string{"professor", "dr.", "phd", "faculty", "researcher", "scholar"}

var personalIndicators = []string{"homepage", "profile", "bio", "cv", "resume"}

// Score rates how likely a result is to describe the contact personally.
func Score(r model.SearchResult) int {
	u := strings.ToLower(r.URL)
	title := strings.ToLower(r.Title)
	snippet := strings.ToLower(r.Snippet)

	var score int
	for i, d := range priorityDomains {
		if strings.Contains(u, d) {
			score += (len(priorityDomains) - i) * 10
			break
		}
	}
	for _, k := range academicKeywords {
		if strings.Contains(title, k) || strings.Contains(snippet, k) {
			score += 5
		}
	}
	for _, k := range personalIndicators {
		if strings.Contains(u, k) || strings.Contains(title, k) {
			score += 3
		}
	}
	return score
}

// Rank sorts results by descending Score, keeping the input order among
// equal scores, and keeps at most limit (all when limit <= 0).
func Rank(results []model.SearchResult, limit int) []model.SearchResult {
	out := slices.Clone(results)
	slices.SortStableFunc(out, func(a, b model.SearchResult) int {
		return Score(b) - Score(a)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
