package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/pkg/jina"
)

const maxSnippetChars = 300

// JinaSearcher queries s.jina.ai.
type JinaSearcher struct {
	client  jina.Client
	observe func(tokens int)
}

// NewJinaSearcher creates a JinaSearcher. observe receives billed tokens
// and may be nil.
func NewJinaSearcher(client jina.Client, observe func(tokens int)) *JinaSearcher {
	return &JinaSearcher{client: client, observe: observe}
}

func (j *JinaSearcher) Name() string { return "jina" }

// Search implements Searcher.
func (j *JinaSearcher) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	resp, err := j.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "search: jina")
	}
	if j.observe != nil {
		j.observe(resp.Tokens())
	}

	var out []model.SearchResult
	for _, d := range resp.Data {
		if d.URL == "" {
			continue
		}
		snippet := d.Description
		if snippet == "" {
			snippet = truncate(strings.Join(strings.Fields(d.Content), " "), maxSnippetChars)
		}
		out = append(out, model.SearchResult{Title: d.Title, URL: d.URL, Snippet: snippet, Source: j.Name()})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
