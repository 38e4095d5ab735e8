package main

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/audit"
	"github.com/sells-group/posting-cli/internal/browser"
	"github.com/sells-group/posting-cli/internal/config"
	"github.com/sells-group/posting-cli/internal/contact"
	"github.com/sells-group/posting-cli/internal/cost"
	"github.com/sells-group/posting-cli/internal/llm"
	"github.com/sells-group/posting-cli/internal/ocr"
	"github.com/sells-group/posting-cli/internal/pipeline"
	"github.com/sells-group/posting-cli/internal/resilience"
	"github.com/sells-group/posting-cli/internal/scrape"
	"github.com/sells-group/posting-cli/internal/search"
	"github.com/sells-group/posting-cli/internal/store"
	anthropicpkg "github.com/sells-group/posting-cli/pkg/anthropic"
	"github.com/sells-group/posting-cli/pkg/jina"
)

// pipelineEnv holds everything the run, analyze, verify and serve
// commands share.
type pipelineEnv struct {
	Store    store.Store
	LLM      *llm.Recorder
	Fetcher  *scrape.Router
	Verifier *contact.Verifier
	Analyzer *pipeline.Analyzer
	Cost     *cost.Calculator

	jinaTokens *atomic.Int64
}

// Close releases the browser and the store.
func (pe *pipelineEnv) Close() {
	if pe.Fetcher != nil {
		if err := pe.Fetcher.Cleanup(); err != nil {
			zap.L().Warn("cleanup cached pdfs", zap.Error(err))
		}
	}
	if pe.Verifier != nil {
		if err := pe.Verifier.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// JinaCost prices the Jina tokens used so far.
func (pe *pipelineEnv) JinaCost() (int, float64) {
	n := int(pe.jinaTokens.Load())
	return n, pe.Cost.Jina(n)
}

// initPipeline validates the config for mode and builds the shared
// environment. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	completer, err := newCompleter(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	rec := llm.NewRecorder(completer)

	env := &pipelineEnv{
		Store:      st,
		LLM:        rec,
		Cost:       cost.NewCalculator(pricingRates(cfg.Pricing)),
		jinaTokens: &atomic.Int64{},
	}
	observe := func(tokens int) { env.jinaTokens.Add(int64(tokens)) }

	jinaClient := newJinaClient(cfg)

	// One browser pool serves page rendering and browser search.
	var pool *browser.Pool
	if cfg.Browser.Enabled {
		pool = browser.NewPool(browser.Config{
			Headless:    cfg.Browser.Headless,
			BinPath:     cfg.Browser.BinPath,
			PageTimeout: time.Duration(cfg.Browser.PageTimeoutSecs) * time.Second,
			Workers:     cfg.Browser.Workers,
		})
	}

	fetcher, err := newFetcher(cfg, st, jinaClient, pool, observe)
	if err != nil {
		if pool != nil {
			_ = pool.Close()
		}
		_ = st.Close()
		return nil, err
	}
	env.Fetcher = fetcher

	searcher, err := newSearcher(cfg, jinaClient, pool, observe)
	if err != nil {
		if pool != nil {
			_ = pool.Close()
		}
		_ = st.Close()
		return nil, err
	}

	var closer io.Closer
	if pool != nil {
		closer = pool
	}
	env.Verifier = contact.NewVerifier(rec, searcher, fetcher, contact.Options{
		Enabled:       cfg.Verify.Enabled,
		MaxResults:    cfg.Verify.MaxResults,
		MaxPages:      cfg.Verify.MaxPages,
		SearchTimeout: time.Duration(cfg.Verify.SearchTimeoutSecs) * time.Second,
		PageChars:     cfg.Verify.PageChars,
	}, closer)

	sink, err := newAuditSink(cfg.Audit, st)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Analyzer = pipeline.New(rec,
		pipeline.WithVerifier(env.Verifier),
		pipeline.WithSink(sink),
		pipeline.WithCostCalculator(env.Cost),
	)

	zap.L().Info("pipeline ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", rec.Model()),
		zap.Bool("browser", pool != nil),
		zap.Bool("verify", cfg.Verify.Enabled),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

// initStore opens the configured store and runs its migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// newCompleter builds the LLM backend for c.LLM.Provider.
func newCompleter(c *config.Config) (llm.Completer, error) {
	opts := llm.Options{
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     time.Duration(c.LLM.Timeout()) * time.Second,
	}

	switch c.LLM.Provider {
	case "openai":
		return llm.NewOpenAICompleter(llm.OpenAIConfig{
			APIKey:     c.OpenAI.Key,
			BaseURL:    c.OpenAI.BaseURL,
			Model:      c.OpenAI.Model,
			MaxRetries: c.Fetch.MaxRetries,
		}, opts), nil
	case "anthropic":
		client := anthropicpkg.NewClient(c.Anthropic.Key, anthropicpkg.WithMaxRetries(c.Fetch.MaxRetries))
		return llm.NewAnthropicCompleter(client, c.Anthropic.Model, opts), nil
	case "ollama":
		return llm.NewOllamaCompleter(c.Ollama.BaseURL, c.Ollama.Model, opts), nil
	default:
		return nil, eris.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
}

func newJinaClient(c *config.Config) jina.Client {
	opts := []jina.Option{
		jina.WithRetry(c.Fetch.MaxRetries, time.Second),
		jina.WithHTTPClient(&http.Client{Timeout: time.Duration(c.Fetch.TimeoutSecs) * time.Second}),
	}
	if c.Jina.BaseURL != "" {
		opts = append(opts, jina.WithBaseURL(c.Jina.BaseURL))
	}
	if c.Jina.SearchBaseURL != "" {
		opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	return jina.NewClient(c.Jina.Key, opts...)
}

// newFetcher builds the page router: local HTTP, then Jina, then the
// browser, with PDFs split off and page text cached in the store.
func newFetcher(c *config.Config, cache scrape.PageCache, jinaClient jina.Client, pool *browser.Pool, observe scrape.TokenObserver) (*scrape.Router, error) {
	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second

	extractor, err := ocr.NewExtractor(c.Fetch)
	if err != nil {
		return nil, eris.Wrap(err, "init pdf extractor")
	}

	rc := scrape.RouterConfig{
		Local:    scrape.NewLocalScraper(timeout, resilience.FetchRetry(c.Fetch, "local")),
		Jina:     scrape.NewJinaScraper(jinaClient, nil, observe),
		PDF:      scrape.NewPDFScraper(c.Fetch.PDFDir, extractor, 2*timeout, resilience.FetchRetry(c.Fetch, "pdf")),
		Cache:    cache,
		CacheTTL: time.Duration(c.Fetch.CacheTTLHours) * time.Hour,
	}
	if pool != nil && c.Fetch.UseBrowser {
		rc.Browser = scrape.NewBrowserScraper(pool)
	}
	return scrape.NewRouter(rc), nil
}

// newSearcher builds the engine chain in the configured order. Unknown
// engine names are an error; the browser engine is skipped without a pool.
func newSearcher(c *config.Config, jinaClient jina.Client, pool *browser.Pool, observe func(int)) (*search.Chain, error) {
	var engines []search.Searcher
	for _, name := range c.Search.Engines {
		switch name {
		case "browser":
			if pool == nil {
				zap.L().Debug("browser disabled, skipping browser search")
				continue
			}
			engines = append(engines, search.NewBrowserSearcher(pool, ""))
		case "jina":
			engines = append(engines, search.NewJinaSearcher(jinaClient, observe))
		case "duckduckgo":
			engines = append(engines, search.NewDuckDuckGo(time.Duration(c.Verify.SearchTimeoutSecs)*time.Second))
		default:
			return nil, eris.Errorf("unknown search engine %q", name)
		}
	}

	chain, err := search.NewChain(engines,
		search.WithBreakers(resilience.NewServiceBreakers(resilience.SearchBreaker(c.Search))),
		search.WithRate(c.Search.RatePerSec),
		search.WithThresholds(0, c.Verify.MaxResults),
	)
	if err != nil {
		return nil, eris.Wrap(err, "init search")
	}
	return chain, nil
}

// newAuditSink writes transcripts to audit.dir and, when audit.store is
// set, to the store as well.
func newAuditSink(c config.AuditConfig, st store.Store) (audit.Sink, error) {
	var sinks []audit.Sink
	if c.Dir != "" {
		fs, err := audit.NewFileSink(c.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if c.Store && st != nil {
		sinks = append(sinks, st)
	}
	if len(sinks) == 0 {
		return audit.Discard, nil
	}
	return audit.Multi(sinks...), nil
}

func pricingRates(p config.PricingConfig) cost.Rates {
	rates := cost.Rates{Jina: cost.JinaRate{PerMTok: p.Jina.PerMTok}}
	if len(p.Models) > 0 {
		rates.Models = make(map[string]cost.ModelRate, len(p.Models))
		for id, m := range p.Models {
			rates.Models[id] = cost.ModelRate{Input: m.Input, Output: m.Output}
		}
	}
	return rates
}
