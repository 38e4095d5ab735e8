// Package browser renders JavaScript-heavy pages in headless Chrome. The
// rod browser is owned by worker goroutines; callers talk to it only by
// message passing through Pool.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrClosed is returned by Render after Close.
var ErrClosed = eris.New("browser: pool closed")

// Page is a rendered page.
type Page struct {
	URL   string
	Title string
	HTML  string
	Text  string
}

// Config controls the pool.
type Config struct {
	Headless    bool
	BinPath     string
	PageTimeout time.Duration
	Workers     int
}

// renderer is the browser-side half of a worker. Only the owning worker
// goroutine calls it.
type renderer interface {
	render(ctx context.Context, url string) (*Page, error)
	close() error
}

type request struct {
	ctx   context.Context
	url   string
	reply chan<- result
}

type result struct {
	page *Page
	err  error
}

// Pool serializes page renders onto a fixed set of workers. Each worker
// launches its browser on first use and keeps it until Close.
type Pool struct {
	cfg         Config
	newRenderer func(Config) (renderer, error)

	reqs      chan request
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool starts the workers. No browser is launched until the first
// Render call.
func NewPool(cfg Config) *Pool {
	return newPool(cfg, launchRod)
}

func newPool(cfg Config, newRenderer func(Config) (renderer, error)) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 60 * time.Second
	}
	p := &Pool{
		cfg:         cfg,
		newRenderer: newRenderer,
		reqs:        make(chan request),
		done:        make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Render loads url and returns its HTML and visible text. The call blocks
// until a worker is free, the page renders, or ctx is done.
func (p *Pool) Render(ctx context.Context, url string) (*Page, error) {
	reply := make(chan result, 1)
	select {
	case p.reqs <- request{ctx: ctx, url: url, reply: reply}:
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "browser: waiting for worker")
	}

	select {
	case res := <-reply:
		return res.page, res.err
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "browser: render")
	}
}

// Close stops the workers and closes their browsers. Safe to call more
// than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
	return nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := zap.L().With(zap.Int("browser_worker", id))

	var r renderer
	defer func() {
		if r != nil {
			if err := r.close(); err != nil {
				log.Warn("browser: close failed", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-p.done:
			return
		case req := <-p.reqs:
			if r == nil {
				var err error
				r, err = p.newRenderer(p.cfg)
				if err != nil {
					r = nil
					req.reply <- result{err: eris.Wrap(err, "browser: launch")}
					continue
				}
				log.Info("browser: launched", zap.Bool("headless", p.cfg.Headless))
			}
			req.reply <- p.serve(r, req)
		}
	}
}

// serve renders one request. A panic from the driver fails only this
// request; the worker keeps running.
func (p *Pool) serve(r renderer, req request) (res result) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("browser: render panicked", zap.String("url", req.url), zap.Any("panic", rec))
			res = result{err: eris.New(fmt.Sprintf("browser: render panicked: %v", rec))}
		}
	}()

	ctx, cancel := context.WithTimeout(req.ctx, p.cfg.PageTimeout)
	defer cancel()

	page, err := r.render(ctx, req.url)
	if err != nil {
		return result{err: eris.Wrapf(err, "browser: render %s", req.url)}
	}
	return result{page: page}
}
