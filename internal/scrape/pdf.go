package scrape

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/ocr"
	"github.com/sells-group/posting-cli/internal/resilience"
)

const maxPDFBytes = 64 << 20

// IsPDFURL reports whether the URL path names a PDF file.
func IsPDFURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ".pdf")
	}
	return strings.Contains(strings.ToLower(u.Path), ".pdf")
}

// PDFScraper downloads PDFs into a cache directory, checks them with
// pdfcpu, and extracts their text. Files are named by the sha256 of the
// URL and stay on disk until Cleanup.
type PDFScraper struct {
	client    *http.Client
	dir       string
	extractor ocr.Extractor
	retry     resilience.RetryConfig

	mu    sync.Mutex
	files map[string]bool
}

// NewPDFScraper creates a PDFScraper writing into dir.
func NewPDFScraper(dir string, extractor ocr.Extractor, timeout time.Duration, retry resilience.RetryConfig) *PDFScraper {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PDFScraper{
		client:    &http.Client{Timeout: timeout},
		dir:       dir,
		extractor: extractor,
		retry:     retry,
		files:     make(map[string]bool),
	}
}

func (p *PDFScraper) Name() string { return "pdf" }

// Supports matches URLs whose path names a PDF. The router also sends
// URLs whose HEAD reports application/pdf.
func (p *PDFScraper) Supports(u string) bool { return IsPDFURL(u) }

// Path returns the cache file for targetURL.
func (p *PDFScraper) Path(targetURL string) string {
	sum := sha256.Sum256([]byte(targetURL))
	return filepath.Join(p.dir, hex.EncodeToString(sum[:])+".pdf")
}

// Scrape downloads (or reuses) the PDF and extracts its text.
func (p *PDFScraper) Scrape(ctx context.Context, targetURL string) (*model.Page, error) {
	path := p.Path(targetURL)
	if _, err := os.Stat(path); err != nil {
		if err := p.download(ctx, targetURL, path); err != nil {
			return nil, err
		}
	}
	p.track(path)

	pages, err := pageCount(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pdf: invalid pdf from %s", targetURL)
	}

	text, err := p.extractor.ExtractText(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: extract text")
	}
	zap.L().Debug("pdf: extracted",
		zap.String("url", targetURL),
		zap.Int("pages", pages),
		zap.Int("chars", len(text)),
	)
	return &model.Page{URL: targetURL, Text: normalizeText(text), StatusCode: http.StatusOK, Source: p.Name()}, nil
}

// Cleanup deletes every PDF downloaded since the last call.
func (p *PDFScraper) Cleanup() error {
	p.mu.Lock()
	files := p.files
	p.files = make(map[string]bool)
	p.mu.Unlock()

	var errs []error
	for f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return eris.Wrap(errors.Join(errs...), "pdf: cleanup")
	}
	return nil
}

func (p *PDFScraper) track(path string) {
	p.mu.Lock()
	p.files[path] = true
	p.mu.Unlock()
}

func (p *PDFScraper) download(ctx context.Context, targetURL, path string) error {
	body, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
		return p.get(ctx, targetURL)
	})
	if err != nil {
		return err
	}

	// Google Drive answers large files with a virus-scan interstitial that
	// links to the real download.
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		next, ok := driveConfirmURL(targetURL, body)
		if !ok {
			return eris.Errorf("pdf: %s did not return a pdf", targetURL)
		}
		body, err = resilience.DoVal(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
			return p.get(ctx, next)
		})
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(body, []byte("%PDF-")) {
			return eris.Errorf("pdf: %s did not return a pdf after confirmation", targetURL)
		}
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return eris.Wrap(err, "pdf: create cache dir")
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return eris.Wrap(err, "pdf: write file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "pdf: rename file")
	}
	return nil
}

func (p *PDFScraper) get(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "pdf: download"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, eris.Wrap(err, "pdf: read body")
	}
	if err := resilience.ResponseError("pdf", resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	n, err := api.PageCount(f, conf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, eris.New("pdf: no pages")
	}
	return n, nil
}

// driveConfirmURL finds the confirmed download link on a Google Drive
// virus-scan page: either an anchor carrying confirm= or the
// download-form with its hidden inputs.
func driveConfirmURL(base string, body []byte) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}

	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.A:
				href := attr(n, "href")
				if strings.Contains(href, "export=download") && strings.Contains(href, "confirm=") {
					found = resolve(baseURL, href)
					return
				}
			case atom.Form:
				if attr(n, "id") == "download-form" {
					q := url.Values{}
					collectInputs(n, q)
					action := resolve(baseURL, attr(n, "action"))
					if action != "" && len(q) > 0 {
						found = action + "?" + q.Encode()
						return
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found, found != ""
}

func collectInputs(n *html.Node, q url.Values) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Input {
			if name := attr(c, "name"); name != "" {
				q.Set(name, attr(c, "value"))
			}
		}
		collectInputs(c, q)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}
