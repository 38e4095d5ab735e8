package llm

import (
	"context"
	"net/http"
	"strings"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty for api.openai.com
	Model      string
	HTTPClient *http.Client
	MaxRetries int
	// LegacyMaxTokens sends max_tokens instead of max_completion_tokens,
	// for servers that predate the newer field.
	LegacyMaxTokens bool
}

// OpenAICompleter implements Completer over the Chat Completions API. It
// also serves Ollama through its OpenAI-compatible /v1 endpoint.
type OpenAICompleter struct {
	client openai.Client
	cfg    OpenAIConfig
	opts   Options
	reset  func(ctx context.Context) error

	mu    sync.Mutex
	usage model.TokenUsage
}

// NewOpenAICompleter creates an OpenAICompleter.
func NewOpenAICompleter(cfg OpenAIConfig, opts Options) *OpenAICompleter {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAICompleter{
		client: openai.NewClient(reqOpts...),
		cfg:    cfg,
		opts:   opts.withDefaults(),
	}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: openai.Float(c.opts.Temperature),
	}
	if c.cfg.LegacyMaxTokens {
		params.MaxTokens = openai.Int(int64(c.opts.MaxTokens))
	} else {
		params.MaxCompletionTokens = openai.Int(int64(c.opts.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", eris.Wrapf(err, "llm: openai complete (%s)", c.cfg.Model)
	}

	c.mu.Lock()
	c.usage.Add(model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	})
	c.mu.Unlock()

	zap.L().Debug("llm: openai completion",
		zap.String("model", c.cfg.Model),
		zap.String("label", LabelFrom(ctx)),
		zap.Int64("input_tokens", resp.Usage.PromptTokens),
		zap.Int64("output_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// ResetContext implements Completer.
func (c *OpenAICompleter) ResetContext(ctx context.Context) error {
	if c.reset == nil {
		return nil
	}
	return c.reset(ctx)
}

// Model implements Completer.
func (c *OpenAICompleter) Model() string { return c.cfg.Model }

// Usage implements Metered.
func (c *OpenAICompleter) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}
