package scrape

import (
	"context"
	"strings"

	"github.com/sells-group/posting-cli/internal/browser"
	"github.com/sells-group/posting-cli/internal/model"
)

// Renderer renders a page in a real browser.
type Renderer interface {
	Render(ctx context.Context, url string) (*browser.Page, error)
}

// BrowserScraper is the last resort for JavaScript-rendered postings.
type BrowserScraper struct {
	renderer Renderer
}

// NewBrowserScraper wraps a Renderer (normally a *browser.Pool).
func NewBrowserScraper(r Renderer) *BrowserScraper {
	return &BrowserScraper{renderer: r}
}

func (b *BrowserScraper) Name() string           { return "browser" }
func (b *BrowserScraper) Supports(_ string) bool { return b.renderer != nil }

// Scrape renders the page and extracts text from the final DOM.
func (b *BrowserScraper) Scrape(ctx context.Context, targetURL string) (*model.Page, error) {
	p, err := b.renderer.Render(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	title, text := p.Title, ""
	if p.HTML != "" {
		if t, body, err := extractHTML([]byte(p.HTML)); err == nil {
			text = body
			if title == "" {
				title = t
			}
		}
	}
	if strings.TrimSpace(text) == "" {
		text = normalizeText(p.Text)
	}
	if isGoogleDocs(targetURL) {
		text = cleanGoogleDocs(text)
	}
	return &model.Page{URL: targetURL, Title: title, Text: text, StatusCode: 200, Source: b.Name()}, nil
}

func isGoogleDocs(u string) bool {
	_, ok := GoogleDocsExportURL(u, "txt")
	return ok
}
