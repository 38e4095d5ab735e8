package search

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/resilience"
)

const (
	// DefaultMinPrimary is the primary-engine hit count below which the
	// fallback engines are consulted.
	DefaultMinPrimary = 5
	// DefaultMaxResults stops the fallback loop.
	DefaultMaxResults = 15
)

// Chain queries a primary engine and, when it returns fewer than
// minPrimary results, appends results from the fallback engines in order
// until maxResults are collected. Each engine has its own circuit breaker
// and rate limiter.
type Chain struct {
	primary    Searcher
	fallbacks  []Searcher
	breakers   *resilience.ServiceBreakers
	limiters   map[string]*AdaptiveLimiter
	ratePerSec float64
	minPrimary int
	maxResults int
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithBreakers shares a breaker registry (keyed by engine name).
func WithBreakers(b *resilience.ServiceBreakers) ChainOption {
	return func(c *Chain) { c.breakers = b }
}

// WithRate limits each engine to perSec requests per second. Zero means
// unlimited.
func WithRate(perSec float64) ChainOption {
	return func(c *Chain) { c.ratePerSec = perSec }
}

// WithThresholds overrides the fallback trigger and the result cap.
func WithThresholds(minPrimary, maxResults int) ChainOption {
	return func(c *Chain) {
		if minPrimary > 0 {
			c.minPrimary = minPrimary
		}
		if maxResults > 0 {
			c.maxResults = maxResults
		}
	}
}

// NewChain builds a Chain from engines in priority order; the first is the
// primary. Nil engines are skipped.
func NewChain(engines []Searcher, opts ...ChainOption) (*Chain, error) {
	var live []Searcher
	for _, e := range engines {
		if e != nil {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return nil, eris.New("search: no engines configured")
	}
	c := &Chain{
		primary:    live[0],
		fallbacks:  live[1:],
		minPrimary: DefaultMinPrimary,
		maxResults: DefaultMaxResults,
	}
	for _, o := range opts {
		o(c)
	}
	if c.breakers == nil {
		c.breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	c.limiters = make(map[string]*AdaptiveLimiter, len(live))
	for _, e := range live {
		c.limiters[e.Name()] = NewAdaptiveLimiter(c.ratePerSec)
	}
	return c, nil
}

func (c *Chain) Name() string { return "chain" }

// Engines lists engine names, primary first.
func (c *Chain) Engines() []string {
	out := []string{c.primary.Name()}
	for _, f := range c.fallbacks {
		out = append(out, f.Name())
	}
	return out
}

// Search implements Searcher. Results are deduplicated by URL. An error is
// returned only when no engine produced anything and at least one failed.
func (c *Chain) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	capN := c.maxResults
	if limit > 0 && limit < capN {
		capN = limit
	}

	var errs []error
	results, err := c.query(ctx, c.primary, query)
	if err != nil {
		errs = append(errs, err)
	}
	results = Dedup(results)

	if len(results) < c.minPrimary {
		for _, fb := range c.fallbacks {
			if len(results) >= c.maxResults || ctx.Err() != nil {
				break
			}
			more, err := c.query(ctx, fb, query)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			results = Dedup(append(results, more...))
		}
	}

	if len(results) == 0 && len(errs) > 0 {
		return nil, eris.Wrap(errors.Join(errs...), "search: all engines failed")
	}
	if len(results) > capN {
		results = results[:capN]
	}
	return results, nil
}

func (c *Chain) query(ctx context.Context, engine Searcher, query string) ([]model.SearchResult, error) {
	name := engine.Name()
	log := zap.L().With(zap.String("engine", name))
	limiter := c.limiters[name]

	if err := limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "search: %s rate wait", name)
	}
	results, err := resilience.ExecuteVal(ctx, c.breakers.Get(name), func(ctx context.Context) ([]model.SearchResult, error) {
		return engine.Search(ctx, query, c.maxResults)
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		log.Debug("search: engine skipped, circuit open")
		return nil, err
	case errors.Is(err, ErrThrottled):
		limiter.OnThrottle(name)
		log.Warn("search: engine throttled", zap.Error(err))
		return nil, err
	case err != nil:
		log.Warn("search: engine failed", zap.Error(err))
		return nil, err
	}
	limiter.OnSuccess()
	log.Debug("search: engine results", zap.Int("count", len(results)))
	return results, nil
}
