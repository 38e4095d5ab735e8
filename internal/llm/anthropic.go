package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/pkg/anthropic"
)

// AnthropicCompleter implements Completer over the Messages API. Each
// call is a fresh single-turn conversation, so ResetContext is a no-op.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
	opts   Options

	mu    sync.Mutex
	usage model.TokenUsage
}

// NewAnthropicCompleter creates an AnthropicCompleter.
func NewAnthropicCompleter(client anthropic.Client, modelID string, opts Options) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, model: modelID, opts: opts.withDefaults()}
}

// Complete implements Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	temp := c.opts.Temperature
	resp, err := c.client.Complete(ctx, anthropic.CompletionRequest{
		Model:       c.model,
		MaxTokens:   int64(c.opts.MaxTokens),
		System:      system,
		Prompt:      prompt,
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic complete")
	}

	c.mu.Lock()
	c.usage.Add(model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	})
	c.mu.Unlock()

	zap.L().Debug("llm: anthropic completion",
		zap.String("model", c.model),
		zap.String("label", LabelFrom(ctx)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)

	if resp.Truncated() {
		zap.L().Warn("llm: anthropic reply hit max tokens",
			zap.String("label", LabelFrom(ctx)),
			zap.Int("max_tokens", c.opts.MaxTokens),
		)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Text, nil
}

// ResetContext implements Completer.
func (c *AnthropicCompleter) ResetContext(context.Context) error { return nil }

// Model implements Completer.
func (c *AnthropicCompleter) Model() string { return c.model }

// Usage implements Metered.
func (c *AnthropicCompleter) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}
