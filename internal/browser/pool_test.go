package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	mu      sync.Mutex
	calls   []string
	closed  atomic.Int32
	renderF func(ctx context.Context, url string) (*Page, error)
}

func (f *fakeRenderer) render(ctx context.Context, url string) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	return f.renderF(ctx, url)
}

func (f *fakeRenderer) close() error {
	f.closed.Add(1)
	return nil
}

func staticRenderer(r *fakeRenderer) func(Config) (renderer, error) {
	return func(Config) (renderer, error) { return r, nil }
}

func TestPool_RenderAndClose(t *testing.T) {
	t.Parallel()
	r := &fakeRenderer{renderF: func(_ context.Context, url string) (*Page, error) {
		return &Page{URL: url, Title: "Jobs", Text: "PhD position"}, nil
	}}
	p := newPool(Config{}, staticRenderer(r))

	page, err := p.Render(context.Background(), "https://example.edu/jobs")
	require.NoError(t, err)
	assert.Equal(t, "PhD position", page.Text)
	assert.Equal(t, []string{"https://example.edu/jobs"}, r.calls)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), r.closed.Load())

	_, err = p.Render(context.Background(), "https://example.edu/other")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_LaunchIsLazyAndRetried(t *testing.T) {
	t.Parallel()
	var launches atomic.Int32
	r := &fakeRenderer{renderF: func(_ context.Context, url string) (*Page, error) {
		return &Page{URL: url}, nil
	}}
	p := newPool(Config{}, func(Config) (renderer, error) {
		if launches.Add(1) == 1 {
			return nil, assert.AnError
		}
		return r, nil
	})
	defer p.Close() //nolint:errcheck

	assert.Equal(t, int32(0), launches.Load())

	_, err := p.Render(context.Background(), "https://a.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser: launch")

	_, err = p.Render(context.Background(), "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, int32(2), launches.Load())
}

func TestPool_PanicFailsOnlyThatRequest(t *testing.T) {
	t.Parallel()
	r := &fakeRenderer{renderF: func(_ context.Context, url string) (*Page, error) {
		if url == "https://crash.example" {
			panic("target crashed")
		}
		return &Page{URL: url}, nil
	}}
	p := newPool(Config{}, staticRenderer(r))
	defer p.Close() //nolint:errcheck

	_, err := p.Render(context.Background(), "https://crash.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render panicked")

	page, err := p.Render(context.Background(), "https://ok.example")
	require.NoError(t, err)
	assert.Equal(t, "https://ok.example", page.URL)
}

func TestPool_PageTimeout(t *testing.T) {
	t.Parallel()
	r := &fakeRenderer{renderF: func(ctx context.Context, _ string) (*Page, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := newPool(Config{PageTimeout: 20 * time.Millisecond}, staticRenderer(r))
	defer p.Close() //nolint:errcheck

	_, err := p.Render(context.Background(), "https://slow.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_CallerContextCancelled(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	r := &fakeRenderer{renderF: func(context.Context, string) (*Page, error) {
		<-block
		return &Page{}, nil
	}}
	p := newPool(Config{PageTimeout: time.Minute}, staticRenderer(r))
	defer func() {
		close(block)
		_ = p.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Render(ctx, "https://slow.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
