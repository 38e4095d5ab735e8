// Package llm adapts chat-completion backends to the single-turn
// Completer interface the pipeline and contact verifier call.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/posting-cli/internal/model"
)

// Completer sends one prompt with a system prompt and returns the reply.
type Completer interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
	// ResetContext clears any server-side conversation state. Backends
	// without such state return nil.
	ResetContext(ctx context.Context) error
	Model() string
}

// Metered is implemented by completers that count tokens.
type Metered interface {
	Usage() model.TokenUsage
}

// ErrEmptyResponse is returned when the backend replies with no text.
var ErrEmptyResponse = eris.New("llm: empty response")

// Options are the sampling and timeout settings shared by all backends.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultOptions mirrors the extraction prompts' expectations: near
// deterministic output with room for a full JSON object.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.1,
		MaxTokens:   3000,
		Timeout:     60 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Temperature < 0 {
		o.Temperature = d.Temperature
	}
	return o
}

type labelKey struct{}

// WithLabel tags calls made with ctx, e.g. "stage1" or "contact_select".
// The Recorder stores the label on each exchange.
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, labelKey{}, label)
}

// LabelFrom returns the label set by WithLabel, or "".
func LabelFrom(ctx context.Context) string {
	s, _ := ctx.Value(labelKey{}).(string)
	return s
}
