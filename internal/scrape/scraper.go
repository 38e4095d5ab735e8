// Package scrape turns a posting URL into plain text. Web pages go through
// local HTTP, Jina Reader and a headless browser in turn; PDFs are
// downloaded and run through text extraction; Google Docs and Drive links
// use their export endpoints.
package scrape

import (
	"context"

	"github.com/sells-group/posting-cli/internal/model"
)

// Fetcher returns the posting text at url. An error means nothing usable
// was found.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Scraper is one way of retrieving a page. Supports lets a scraper opt
// out of a URL, or out of everything while its circuit is open.
type Scraper interface {
	Name() string
	Supports(url string) bool
	Scrape(ctx context.Context, url string) (*model.Page, error)
}

var _ Fetcher = (*Router)(nil)
