package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/posting-cli/internal/browser"
	"github.com/sells-group/posting-cli/internal/model"
)

const defaultGoogleURL = "https://www.google.com/search"

// Renderer renders a page in a real browser.
type Renderer interface {
	Render(ctx context.Context, url string) (*browser.Page, error)
}

// BrowserSearcher runs Google searches in the headless browser pool.
// Rendering the results page like a user avoids the API key and
// quota an API search would need.
type BrowserSearcher struct {
	renderer Renderer
	baseURL  string
}

// NewBrowserSearcher creates a BrowserSearcher. baseURL defaults to
// Google's search endpoint.
func NewBrowserSearcher(r Renderer, baseURL string) *BrowserSearcher {
	if baseURL == "" {
		baseURL = defaultGoogleURL
	}
	return &BrowserSearcher{renderer: r, baseURL: baseURL}
}

func (b *BrowserSearcher) Name() string { return "browser" }

// Search implements Searcher.
func (b *BrowserSearcher) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	num := limit
	if num <= 0 {
		num = 10
	}
	page, err := b.renderer.Render(ctx, googleURL(b.baseURL, query, num))
	if err != nil {
		return nil, eris.Wrap(err, "search: browser")
	}
	if isGoogleBlock(page) {
		return nil, eris.Wrap(ErrThrottled, "search: browser hit google bot check")
	}
	results, err := parseGoogle(page.HTML)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func isGoogleBlock(p *browser.Page) bool {
	if strings.Contains(p.URL, "/sorry/") {
		return true
	}
	lower := strings.ToLower(p.Text)
	return strings.Contains(lower, "unusual traffic from your computer network")
}

// parseGoogle reads organic results: anchors wrapping an <h3>, with the
// snippet taken from the surrounding result block.
func parseGoogle(page string) ([]model.SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, eris.Wrap(err, "search: parse google html")
	}

	var out []model.SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if h3 := findElement(n, func(c *html.Node) bool { return c.Data == "h3" }); h3 != nil {
				if u, ok := unwrapGoogle(attr(n, "href")); ok {
					out = append(out, model.SearchResult{
						Title:   nodeText(h3),
						URL:     u,
						Snippet: googleSnippet(n),
						Source:  "browser",
					})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

// unwrapGoogle accepts direct result links and the /url?q= redirects
// served to clients without JavaScript.
func unwrapGoogle(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Path == "/url" {
		if u, err = url.Parse(u.Query().Get("q")); err != nil {
			return "", false
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := u.Hostname()
	if strings.HasPrefix(host, "scholar.google.") {
		return u.String(), true
	}
	if strings.Contains(host, "google.") || strings.HasSuffix(host, "googleusercontent.com") {
		return "", false
	}
	return u.String(), true
}

// googleSnippet climbs to the enclosing result block and returns the text
// of its snippet element.
func googleSnippet(a *html.Node) string {
	block := a.Parent
	for i := 0; block != nil && i < 8; i++ {
		if block.Type == html.ElementNode && (hasClass(block, "g") || hasClass(block, "MjjYud")) {
			break
		}
		block = block.Parent
	}
	if block == nil {
		return ""
	}
	snip := findElement(block, func(c *html.Node) bool {
		return hasClass(c, "VwiC3b") || attr(c, "data-sncf") != "" || hasClass(c, "st")
	})
	if snip == nil {
		return ""
	}
	return nodeText(snip)
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func googleURL(base, query string, num int) string {
	return base + "?" + url.Values{"q": {query}, "num": {strconv.Itoa(num)}, "hl": {"en"}}.Encode()
}
