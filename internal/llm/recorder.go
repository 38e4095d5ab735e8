package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/posting-cli/internal/model"
)

// Recorder wraps a Completer and keeps a transcript of every call for the
// current run. Start begins a run and Take ends it.
type Recorder struct {
	inner Completer
	now   func() time.Time

	mu        sync.Mutex
	source    string
	exchanges []model.Exchange
}

// NewRecorder wraps inner.
func NewRecorder(inner Completer) *Recorder {
	return &Recorder{inner: inner, now: time.Now}
}

// Start discards any previous transcript and records source as the text
// under analysis.
func (r *Recorder) Start(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = source
	r.exchanges = nil
}

// Take returns the transcript and clears it.
func (r *Recorder) Take() []model.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.exchanges
	r.exchanges = nil
	r.source = ""
	return out
}

// Complete implements Completer. Failed calls are recorded with their
// error so the transcript shows every attempt.
func (r *Recorder) Complete(ctx context.Context, prompt, system string) (string, error) {
	at := r.now().UTC()
	resp, err := r.inner.Complete(ctx, prompt, system)

	label := LabelFrom(ctx)
	ex := model.Exchange{
		Stage:    label,
		Model:    r.inner.Model(),
		At:       at,
		System:   system,
		Prompt:   prompt,
		Response: resp,
	}
	if err != nil {
		ex.Error = err.Error()
	}

	r.mu.Lock()
	// Stage prompts embed the posting; keep it alongside for review.
	if strings.HasPrefix(label, "stage") {
		ex.SourceText = r.source
	}
	r.exchanges = append(r.exchanges, ex)
	r.mu.Unlock()

	return resp, err
}

// ResetContext implements Completer.
func (r *Recorder) ResetContext(ctx context.Context) error {
	return r.inner.ResetContext(ctx)
}

// Model implements Completer.
func (r *Recorder) Model() string { return r.inner.Model() }

// Usage implements Metered when the wrapped completer does.
func (r *Recorder) Usage() model.TokenUsage {
	if m, ok := r.inner.(Metered); ok {
		return m.Usage()
	}
	return model.TokenUsage{}
}
