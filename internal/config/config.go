package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Sheet     SheetConfig     `yaml:"sheet" mapstructure:"sheet"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects the completion backend and its sampling settings.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	// TimeoutSecs bounds one completion. Zero picks 180 for ollama and 60
	// for hosted providers.
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the effective completion timeout in seconds.
func (c LLMConfig) Timeout() int {
	if c.TimeoutSecs > 0 {
		return c.TimeoutSecs
	}
	if c.Provider == "ollama" {
		return 180
	}
	return 60
}

// OpenAIConfig holds OpenAI (or compatible) API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OllamaConfig holds local Ollama settings.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FetchConfig configures content acquisition.
type FetchConfig struct {
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int    `yaml:"max_retries" mapstructure:"max_retries"`
	PDFDir        string `yaml:"pdf_dir" mapstructure:"pdf_dir"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	OCRProvider   string `yaml:"ocr_provider" mapstructure:"ocr_provider"` // local, mistral
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	UseBrowser    bool   `yaml:"use_browser" mapstructure:"use_browser"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// BrowserConfig configures the headless browser pool.
type BrowserConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Headless        bool   `yaml:"headless" mapstructure:"headless"`
	BinPath         string `yaml:"bin_path" mapstructure:"bin_path"`
	PageTimeoutSecs int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	Workers         int    `yaml:"workers" mapstructure:"workers"`
}

// SearchConfig configures the search engine chain.
type SearchConfig struct {
	Engines          []string `yaml:"engines" mapstructure:"engines"`
	RatePerSec       float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CircuitThreshold int      `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs int      `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// VerifyConfig configures contact verification.
type VerifyConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	SearchTimeoutSecs int  `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	MaxResults        int  `yaml:"max_results" mapstructure:"max_results"`
	MaxPages          int  `yaml:"max_pages" mapstructure:"max_pages"`
	PageChars         int  `yaml:"page_chars" mapstructure:"page_chars"`
}

// SheetConfig locates the workbook.
type SheetConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Name     string `yaml:"name" mapstructure:"name"`
	LockPath string `yaml:"lock_path" mapstructure:"lock_path"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AuditConfig configures LLM transcript persistence.
type AuditConfig struct {
	Dir   string `yaml:"dir" mapstructure:"dir"`
	Store bool   `yaml:"store" mapstructure:"store"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	Jina   JinaPricing             `yaml:"jina" mapstructure:"jina"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// JinaPricing holds Jina Reader pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load layers POSTING_* environment variables over a YAML file over the
// defaults. With path empty, config.yaml in the working directory is used
// when present; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("POSTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 3000)
	v.SetDefault("llm.timeout_secs", 0)
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-5-chat-latest")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "qwen3:14b")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.pdf_dir", "pdf_cache")
	v.SetDefault("fetch.pdftotext_path", "pdftotext")
	v.SetDefault("fetch.ocr_provider", "local")
	v.SetDefault("fetch.mistral_key", "")
	v.SetDefault("fetch.mistral_model", "mistral-ocr-latest")
	v.SetDefault("fetch.use_browser", true)
	v.SetDefault("fetch.cache_ttl_hours", 24)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.page_timeout_secs", 60)
	v.SetDefault("browser.workers", 1)
	v.SetDefault("search.engines", []string{"browser", "jina", "duckduckgo"})
	v.SetDefault("search.rate_per_sec", 0.5)
	v.SetDefault("search.circuit_threshold", 3)
	v.SetDefault("search.circuit_reset_secs", 120)
	v.SetDefault("verify.enabled", true)
	v.SetDefault("verify.search_timeout_secs", 20)
	v.SetDefault("verify.max_results", 10)
	v.SetDefault("verify.max_pages", 3)
	v.SetDefault("verify.page_chars", 5000)
	v.SetDefault("sheet.path", "text_info.xlsx")
	v.SetDefault("sheet.name", "Unfilled")
	v.SetDefault("sheet.lock_path", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "posting.db")
	v.SetDefault("audit.dir", "llm_logs")
	v.SetDefault("audit.store", true)
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command cannot start without. mode is
// one of "run", "analyze", "verify", "status" or "serve"; "status" only
// needs the sheet.
func (c *Config) Validate(mode string) error {
	var problems []string
	needLLM := true
	switch mode {
	case "run", "analyze", "verify":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "status":
		needLLM = false
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needLLM {
		switch c.LLM.Provider {
		case "openai":
			if c.OpenAI.Key == "" {
				problems = append(problems, "openai.key is required")
			}
		case "anthropic":
			if c.Anthropic.Key == "" {
				problems = append(problems, "anthropic.key is required")
			}
		case "ollama":
			if c.Ollama.BaseURL == "" {
				problems = append(problems, "ollama.base_url is required")
			}
		default:
			problems = append(problems, fmt.Sprintf("llm.provider %q is not one of openai, anthropic, ollama", c.LLM.Provider))
		}
		if c.Fetch.OCRProvider == "mistral" && c.Fetch.MistralKey == "" {
			problems = append(problems, "fetch.mistral_key is required for ocr_provider mistral")
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}
	if (mode == "run" || mode == "status") && c.Sheet.Path == "" {
		problems = append(problems, "sheet.path is required")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
