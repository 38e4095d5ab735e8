package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/posting-cli/internal/audit"
	"github.com/sells-group/posting-cli/internal/config"
	"github.com/sells-group/posting-cli/internal/llm"
	"github.com/sells-group/posting-cli/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LLM:    config.LLMConfig{Provider: "ollama", Temperature: 0.1, MaxTokens: 3000},
		OpenAI: config.OpenAIConfig{Key: "sk-test", Model: "gpt-4o"},
		Ollama: config.OllamaConfig{BaseURL: "http://127.0.0.1:11434", Model: "qwen3:14b"},
		Fetch: config.FetchConfig{
			TimeoutSecs:   5,
			MaxRetries:    1,
			PDFDir:        filepath.Join(dir, "pdf"),
			PdfToTextPath: "pdftotext",
			OCRProvider:   "local",
			CacheTTLHours: 1,
		},
		Search: config.SearchConfig{
			Engines:          []string{"browser", "jina", "duckduckgo"},
			CircuitThreshold: 3,
			CircuitResetSecs: 60,
		},
		Verify:  config.VerifyConfig{Enabled: true, SearchTimeoutSecs: 5, MaxResults: 10, MaxPages: 3, PageChars: 5000},
		Sheet:   config.SheetConfig{Path: filepath.Join(dir, "text_info.xlsx"), Name: "Unfilled"},
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "posting.db")},
		Audit:   config.AuditConfig{Dir: filepath.Join(dir, "llm_logs"), Store: true},
		Pricing: config.PricingConfig{Jina: config.JinaPricing{PerMTok: 0.02}},
		Server:  config.ServerConfig{Port: 8080},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestNewCompleter(t *testing.T) {
	c := testConfig(t)

	tests := []struct {
		provider string
		model    string
	}{
		{"openai", "gpt-4o"},
		{"anthropic", "claude-haiku-4-5-20251001"},
		{"ollama", "qwen3:14b"},
	}
	c.Anthropic = config.AnthropicConfig{Key: "sk-ant-test", Model: "claude-haiku-4-5-20251001"}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c.LLM.Provider = tt.provider
			completer, err := newCompleter(c)
			require.NoError(t, err)
			assert.Equal(t, tt.model, completer.Model())
			_, metered := completer.(llm.Metered)
			assert.True(t, metered)
		})
	}

	c.LLM.Provider = "gemini"
	_, err := newCompleter(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini")
}

func TestNewSearcher(t *testing.T) {
	c := testConfig(t)
	jinaClient := newJinaClient(c)

	chain, err := newSearcher(c, jinaClient, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"jina", "duckduckgo"}, chain.Engines())

	c.Search.Engines = []string{"duckduckgo", "jina"}
	chain, err = newSearcher(c, jinaClient, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"duckduckgo", "jina"}, chain.Engines())

	c.Search.Engines = []string{"bing"}
	_, err = newSearcher(c, jinaClient, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bing")

	c.Search.Engines = []string{"browser"}
	_, err = newSearcher(c, jinaClient, nil, nil)
	require.Error(t, err, "no engine left without a browser pool")
}

func TestNewAuditSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	sink, err := newAuditSink(config.AuditConfig{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, sink)

	sink, err = newAuditSink(config.AuditConfig{Dir: dir}, nil)
	require.NoError(t, err)
	_, isFile := sink.(*audit.FileSink)
	assert.False(t, isFile, "sinks are combined")
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPricingRates(t *testing.T) {
	t.Parallel()

	rates := pricingRates(config.PricingConfig{
		Models: map[string]config.ModelPricing{"qwen-hosted": {Input: 0.5, Output: 1.5}},
		Jina:   config.JinaPricing{PerMTok: 0.05},
	})
	assert.InDelta(t, 0.5, rates.Models["qwen-hosted"].Input, 1e-9)
	assert.InDelta(t, 0.05, rates.Jina.PerMTok, 1e-9)

	empty := pricingRates(config.PricingConfig{})
	assert.Nil(t, empty.Models, "defaults apply in the calculator")
}

func TestInitPipeline(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })
	cfg = testConfig(t)

	env, err := initPipeline(context.Background(), "analyze")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Analyzer)
	assert.NotNil(t, env.Fetcher)
	require.NotNil(t, env.Verifier)
	assert.True(t, env.Verifier.Enabled())
	assert.Equal(t, "qwen3:14b", env.LLM.Model())
	_, isSQLite := env.Store.(*store.SQLiteStore)
	assert.True(t, isSQLite)

	tokens, jinaCost := env.JinaCost()
	assert.Zero(t, tokens)
	assert.Zero(t, jinaCost)

	_, err = os.Stat(cfg.Audit.Dir)
	assert.NoError(t, err)
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })
	cfg = testConfig(t)
	cfg.LLM.Provider = "openai"
	cfg.OpenAI.Key = ""

	_, err := initPipeline(context.Background(), "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.key is required")
}
