package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/resilience"
)

// postingServer serves an HTML posting at /job, a PDF at /files/job.pdf,
// a PDF behind an extensionless URL at /download (HEAD says pdf) and a
// PDF that only GET reveals at /attachment.
func postingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/job", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(postingHTML))
	})
	mux.HandleFunc("/files/job.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(minimalPDF())
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(minimalPDF())
	})
	mux.HandleFunc("/attachment", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "text/html")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(minimalPDF())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, cfg RouterConfig) *Router {
	t.Helper()
	if cfg.Local == nil {
		cfg.Local = newTestLocal(1)
	}
	if cfg.PDF == nil {
		cfg.PDF = newTestPDF(t, &stubExtractor{text: postingText})
	}
	return NewRouter(cfg)
}

func TestRouter_WebPage(t *testing.T) {
	t.Parallel()
	srv := postingServer(t)

	page, err := newTestRouter(t, RouterConfig{}).FetchPage(context.Background(), srv.URL+"/job")
	require.NoError(t, err)
	assert.Equal(t, "local", page.Source)
	assert.Contains(t, page.Text, "Glacier Dynamics")
}

func TestRouter_PDFRoutes(t *testing.T) {
	t.Parallel()
	srv := postingServer(t)
	tests := []struct {
		name string
		path string
	}{
		{"pdf extension", "/files/job.pdf"},
		{"head content type", "/download"},
		{"pdf served to web scraper", "/attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRouter(t, RouterConfig{})
			page, err := r.FetchPage(context.Background(), srv.URL+tt.path)
			require.NoError(t, err)
			assert.Equal(t, "pdf", page.Source)
			assert.Equal(t, postingText, page.Text)
			require.NoError(t, r.Cleanup())
		})
	}
}

func TestRouter_FallsThroughWebChain(t *testing.T) {
	t.Parallel()
	srv := postingServer(t)
	local := &mockScraper{name: "local", supports: true, page: &model.Page{Text: "Loading..."}}
	jina := &mockScraper{name: "jina", supports: true, err: errors.New("jina: status 500")}
	browser := &mockScraper{name: "browser", supports: true, page: &model.Page{Text: postingText}}

	r := newTestRouter(t, RouterConfig{Local: local, Jina: jina, Browser: browser})
	text, err := r.Fetch(context.Background(), srv.URL+"/job")
	require.NoError(t, err)
	assert.Equal(t, postingText, text)
	assert.Len(t, local.calls, 1)
	assert.Len(t, jina.calls, 1)
}

func TestRouter_JSHeavyPrefersBrowser(t *testing.T) {
	t.Parallel()
	srv := postingServer(t)
	local := &mockScraper{name: "local", supports: true, page: &model.Page{Text: postingText}}
	browser := &mockScraper{name: "browser", supports: true, page: &model.Page{Text: postingText}}

	r := newTestRouter(t, RouterConfig{
		Local:   local,
		Browser: browser,
		JSHeavy: NewSiteMatcher([]string{"127.0.0.1"}),
	})
	page, err := r.FetchPage(context.Background(), srv.URL+"/job")
	require.NoError(t, err)
	assert.Equal(t, "browser", page.Source)
	assert.Empty(t, local.calls)
}

func TestRouter_AllFail(t *testing.T) {
	t.Parallel()
	srv := postingServer(t)
	local := &mockScraper{name: "local", supports: true, err: errors.New("local: status 404")}

	_, err := newTestRouter(t, RouterConfig{Local: local}).Fetch(context.Background(), srv.URL+"/job")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrape: fetch")
	assert.Contains(t, err.Error(), "status 404")
}

func TestRouter_CacheMissStores(t *testing.T) {
	t.Parallel()
	srv := postingServer(t)
	target := srv.URL + "/job"

	cache := &mockCache{}
	cache.On("GetPage", mock.Anything, target).Return(nil, nil)
	cache.On("PutPage", mock.Anything, mock.MatchedBy(func(p model.CachedPage) bool {
		return p.URL == target && p.Source == "local" &&
			p.ExpiresAt.Sub(p.FetchedAt) == 2*time.Hour && p.Text != ""
	})).Return(nil)

	r := newTestRouter(t, RouterConfig{Cache: cache, CacheTTL: 2 * time.Hour})
	_, err := r.Fetch(context.Background(), target)
	require.NoError(t, err)
	cache.AssertExpectations(t)
}

func TestRouter_CacheHit(t *testing.T) {
	t.Parallel()
	local := &mockScraper{name: "local", supports: true, page: &model.Page{Text: "fresh"}}
	cache := &mockCache{}
	cache.On("GetPage", mock.Anything, "https://uni.edu/job").
		Return(&model.CachedPage{URL: "https://uni.edu/job", Text: postingText, Source: "jina"}, nil)

	r := newTestRouter(t, RouterConfig{Local: local, Cache: cache, CacheTTL: time.Hour})
	page, err := r.FetchPage(context.Background(), "https://uni.edu/job")
	require.NoError(t, err)
	assert.Equal(t, postingText, page.Text)
	assert.Equal(t, "jina", page.Source)
	assert.Empty(t, local.calls)
	cache.AssertNotCalled(t, "PutPage", mock.Anything, mock.Anything)
}

func TestRouter_CacheErrorsAreNotFatal(t *testing.T) {
	t.Parallel()
	srv := postingServer(t)
	cache := &mockCache{}
	cache.On("GetPage", mock.Anything, mock.Anything).Return(nil, errors.New("db locked"))
	cache.On("PutPage", mock.Anything, mock.Anything).Return(errors.New("db locked"))

	_, err := newTestRouter(t, RouterConfig{Cache: cache, CacheTTL: time.Hour}).Fetch(context.Background(), srv.URL+"/job")
	assert.NoError(t, err)
}

func TestRouter_GoogleDocsUsesBrowserWhenExportFails(t *testing.T) {
	t.Parallel()
	local := &mockScraper{name: "local", supports: true, err: errors.New("local: status 401")}
	browser := &mockScraper{name: "browser", supports: true, page: &model.Page{Text: postingText}}
	pdf := NewPDFScraper(t.TempDir(), &stubExtractor{}, time.Second, resilience.RetryConfig{MaxAttempts: 1})
	pdf.client.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("offline")
	})

	docURL := "https://docs.google.com/document/d/abc123/edit"
	r := NewRouter(RouterConfig{Local: local, Browser: browser, PDF: pdf})
	page, err := r.FetchPage(context.Background(), docURL)
	require.NoError(t, err)
	assert.Equal(t, "browser", page.Source)
	assert.Equal(t, docURL, page.URL)
	assert.Equal(t, []string{"https://docs.google.com/document/d/abc123/export?format=txt"}, local.calls)
	assert.Equal(t, []string{docURL}, browser.calls)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
