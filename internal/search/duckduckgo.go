package search

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/resilience"
)

// ErrThrottled is returned when an engine answers with a rate-limit or
// bot-check page instead of results.
var ErrThrottled = eris.New("search: engine throttled")

const (
	defaultDDGURL = "https://html.duckduckgo.com/html/"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes  = 2 << 20
)

// DuckDuckGo queries the JavaScript-free DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
	retry   resilience.RetryConfig
}

// DDGOption configures a DuckDuckGo searcher.
type DDGOption func(*DuckDuckGo)

// WithDDGBaseURL overrides the endpoint (for tests).
func WithDDGBaseURL(u string) DDGOption {
	return func(d *DuckDuckGo) { d.baseURL = u }
}

// WithDDGHTTPClient sets the HTTP client.
func WithDDGHTTPClient(hc *http.Client) DDGOption {
	return func(d *DuckDuckGo) { d.client = hc }
}

// NewDuckDuckGo creates a DuckDuckGo searcher.
func NewDuckDuckGo(timeout time.Duration, opts ...DDGOption) *DuckDuckGo {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	d := &DuckDuckGo{
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultDDGURL,
		retry:   resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Second},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	body, err := resilience.DoVal(ctx, d.retry, func(ctx context.Context) ([]byte, error) {
		return d.get(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	results, err := parseDDG(body)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (d *DuckDuckGo) get(ctx context.Context, query string) ([]byte, error) {
	u := d.baseURL + "?" + url.Values{"q": {query}, "kl": {"wt-wt"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "search: duckduckgo request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "search: duckduckgo"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "search: duckduckgo read body")
	}
	// DuckDuckGo answers bots with 202 and an anomaly page.
	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusTooManyRequests, http.StatusForbidden:
		return nil, eris.Wrapf(ErrThrottled, "duckduckgo status %d", resp.StatusCode)
	}
	if err := resilience.ResponseError("search: duckduckgo", resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

// parseDDG pulls results out of the result__a / result__snippet markup.
// Redirect links (/l/?uddg=) are unwrapped and ad links are dropped.
func parseDDG(body []byte) ([]model.SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, eris.Wrap(err, "search: parse duckduckgo html")
	}

	var out []model.SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				if u, ok := unwrapDDG(attr(n, "href")); ok {
					out = append(out, model.SearchResult{Title: nodeText(n), URL: u, Source: "duckduckgo"})
				}
				return
			case hasClass(n, "result__snippet"):
				if len(out) > 0 && out[len(out)-1].Snippet == "" {
					out[len(out)-1].Snippet = nodeText(n)
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

func unwrapDDG(href string) (string, bool) {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		target := u.Query().Get("uddg")
		if target == "" {
			return "", false
		}
		if u, err = url.Parse(target); err != nil {
			return "", false
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		return "", false
	}
	return u.String(), true
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
