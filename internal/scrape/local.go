package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/resilience"
)

// ErrPDFContent is returned when a URL that looked like a web page serves
// a PDF. The caller should route it to the PDF scraper.
var ErrPDFContent = eris.New("scrape: response is a pdf")

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxPageBytes = 4 << 20
)

// LocalScraper fetches HTML via net/http, detects blocks, and converts to
// plaintext. Transient failures are retried; blocks fall through to the
// next scraper in the chain.
type LocalScraper struct {
	client *http.Client
	retry  resilience.RetryConfig
}

// NewLocalScraper creates a LocalScraper retrying transient failures per retry.
func NewLocalScraper(timeout time.Duration, retry resilience.RetryConfig) *LocalScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retry: retry,
	}
}

func (l *LocalScraper) Name() string           { return "local" }
func (l *LocalScraper) Supports(_ string) bool { return true }

type fetched struct {
	status      int
	contentType string
	body        []byte
	header      http.Header
}

// Scrape fetches a URL, detects blocks, and extracts readable text.
// text/plain bodies are returned as-is.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*model.Page, error) {
	f, err := resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*fetched, error) {
		return l.get(ctx, targetURL)
	})
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(f.contentType)
	if mediaType == "application/pdf" || bytes.HasPrefix(f.body, []byte("%PDF-")) {
		return nil, ErrPDFContent
	}

	if kind := classifyBlock(f.status, f.header, f.body); kind != notBlocked {
		return nil, eris.Errorf("local: blocked (%s)", kind)
	}
	if f.status >= 400 {
		return nil, eris.Errorf("local: status %d", f.status)
	}

	page := &model.Page{URL: targetURL, StatusCode: f.status, Source: l.Name()}
	if mediaType == "text/plain" {
		page.Text = normalizeText(string(f.body))
		return page, nil
	}

	page.Title, page.Text, err = extractHTML(f.body)
	if err != nil {
		return nil, eris.Wrap(err, "local: parse html")
	}
	return page, nil
}

func (l *LocalScraper) get(ctx context.Context, targetURL string) (*fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local: read body")
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.ResponseError("local", resp, body)
	}
	return &fetched{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
		header:      resp.Header,
	}, nil
}

// Elements whose text is page chrome, not content.
var skipElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.Svg: true, atom.Iframe: true, atom.Form: true,
}

// Elements that start a new line in the extracted text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
	atom.Dd: true, atom.Dt: true, atom.Blockquote: true, atom.Pre: true, atom.Hr: true,
}

// extractHTML returns the document title and its visible text with page
// chrome removed.
func extractHTML(body []byte) (title, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if skipElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				sb.WriteByte('\n')
			}
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return title, normalizeText(sb.String()), nil
}
