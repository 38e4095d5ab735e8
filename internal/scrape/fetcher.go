package scrape

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
)

// PageCache stores fetched page text. GetPage returns nil, nil on a miss
// or an expired entry.
type PageCache interface {
	GetPage(ctx context.Context, url string) (*model.CachedPage, error)
	PutPage(ctx context.Context, page model.CachedPage) error
}

// RouterConfig wires the scrapers a Router may use. Any scraper may be
// nil; Local is required.
type RouterConfig struct {
	Local   Scraper
	Jina    Scraper
	Browser Scraper
	PDF     *PDFScraper
	// JSHeavy sites go to the browser before plain HTTP.
	JSHeavy  *SiteMatcher
	Cache    PageCache
	CacheTTL time.Duration
	// HeadTimeout bounds the content-type probe. Default 10s.
	HeadTimeout time.Duration
}

// Router is the Fetcher used by the pipeline. It picks a route by URL
// shape (Google Docs, Google Drive, PDF, web page) and caches the text.
type Router struct {
	cfg   RouterConfig
	web   *scraperChain
	jsWeb *scraperChain
	head  *http.Client
	now   func() time.Time
}

// NewRouter builds a Router from cfg.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = 10 * time.Second
	}
	if cfg.JSHeavy == nil {
		cfg.JSHeavy = NewSiteMatcher(nil)
	}
	return &Router{
		cfg:   cfg,
		web:   newChain(cfg.Local, cfg.Jina, cfg.Browser),
		jsWeb: newChain(cfg.Browser, cfg.Jina, cfg.Local),
		head:  &http.Client{Timeout: cfg.HeadTimeout},
		now:   time.Now,
	}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, targetURL string) (string, error) {
	page, err := r.FetchPage(ctx, targetURL)
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// FetchPage returns the page for targetURL, from the cache when fresh.
func (r *Router) FetchPage(ctx context.Context, targetURL string) (*model.Page, error) {
	log := zap.L().With(zap.String("url", targetURL))

	if r.cfg.Cache != nil {
		cached, err := r.cfg.Cache.GetPage(ctx, targetURL)
		if err != nil {
			log.Warn("scrape: page cache read failed", zap.Error(err))
		} else if cached != nil {
			log.Debug("scrape: page cache hit", zap.String("source", cached.Source))
			return &model.Page{URL: targetURL, Text: cached.Text, Source: cached.Source, StatusCode: http.StatusOK}, nil
		}
	}

	start := r.now()
	page, err := r.route(ctx, targetURL)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: fetch %s", targetURL)
	}
	log.Info("scrape: fetched",
		zap.String("source", page.Source),
		zap.Int("chars", len(page.Text)),
		zap.Duration("elapsed", r.now().Sub(start)),
	)

	if r.cfg.Cache != nil && r.cfg.CacheTTL > 0 {
		now := r.now().UTC()
		if err := r.cfg.Cache.PutPage(ctx, model.CachedPage{
			URL:       targetURL,
			Text:      page.Text,
			Source:    page.Source,
			FetchedAt: now,
			ExpiresAt: now.Add(r.cfg.CacheTTL),
		}); err != nil {
			log.Warn("scrape: page cache write failed", zap.Error(err))
		}
	}
	return page, nil
}

// Cleanup removes PDFs downloaded for the current row.
func (r *Router) Cleanup() error {
	if r.cfg.PDF == nil {
		return nil
	}
	return r.cfg.PDF.Cleanup()
}

func (r *Router) route(ctx context.Context, targetURL string) (*model.Page, error) {
	if exportURL, ok := GoogleDocsExportURL(targetURL, "txt"); ok {
		return r.googleDocs(ctx, targetURL, exportURL)
	}
	if downloadURL, ok := GoogleDriveDownloadURL(targetURL); ok {
		return r.first(ctx,
			attempt{r.pdfScraper(), downloadURL},
			attempt{r.cfg.Browser, targetURL},
		)
	}
	if IsPDFURL(targetURL) || r.headIsPDF(ctx, targetURL) {
		return r.first(ctx, attempt{r.pdfScraper(), targetURL})
	}

	web := r.web
	if r.cfg.JSHeavy.Match(targetURL) {
		web = r.jsWeb
	}
	page, err := web.Scrape(ctx, targetURL)
	if errors.Is(err, ErrPDFContent) {
		zap.L().Info("scrape: web url served a pdf", zap.String("url", targetURL))
		return r.first(ctx, attempt{r.pdfScraper(), targetURL})
	}
	return page, err
}

func (r *Router) googleDocs(ctx context.Context, docURL, txtExport string) (*model.Page, error) {
	pdfExport, _ := GoogleDocsExportURL(docURL, "pdf")
	page, err := r.first(ctx,
		attempt{r.cfg.Local, txtExport},
		attempt{r.pdfScraper(), pdfExport},
		attempt{r.cfg.Browser, docURL},
	)
	if err != nil {
		return nil, err
	}
	page.URL = docURL
	return page, nil
}

type attempt struct {
	scraper Scraper
	url     string
}

// first runs each attempt through a one-scraper chain (so UsableText
// applies) and returns the first success.
func (r *Router) first(ctx context.Context, attempts ...attempt) (*model.Page, error) {
	var lastErr error
	for _, a := range attempts {
		if a.scraper == nil {
			continue
		}
		page, err := newChain(a.scraper).Scrape(ctx, a.url)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, eris.New("scrape: no scraper available for route")
	}
	return nil, lastErr
}

// pdfScraper returns the PDF scraper as a Scraper, or a nil interface
// when none is configured.
func (r *Router) pdfScraper() Scraper {
	if r.cfg.PDF == nil {
		return nil
	}
	return pdfRoute{r.cfg.PDF}
}

// pdfRoute lets the router send any URL to the PDF scraper, not only
// those with a .pdf path.
type pdfRoute struct{ *PDFScraper }

func (p pdfRoute) Supports(string) bool { return true }

// headIsPDF probes the content type. Servers that reject HEAD are treated
// as web pages.
func (r *Router) headIsPDF(ctx context.Context, targetURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := r.head.Do(req)
	if err != nil {
		zap.L().Debug("scrape: head probe failed", zap.String("url", targetURL), zap.Error(err))
		return false
	}
	_ = resp.Body.Close()
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return mediaType == "application/pdf"
}
