package search

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter that slows down when an engine
// starts throttling. On success the rate grows by 20% (up to 2x initial);
// on a throttle response it halves (down to initial/4).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates a limiter allowing perSec requests per second.
func NewAdaptiveLimiter(perSec float64) *AdaptiveLimiter {
	r := rate.Limit(perSec)
	if perSec <= 0 {
		r = rate.Inf
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(r, 1),
		initialRate: r,
		currentRate: r,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess nudges the rate up.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialRate == rate.Inf {
		return
	}
	next := a.currentRate * 1.2
	if next > a.initialRate*2 {
		next = a.initialRate * 2
	}
	a.set(next)
}

// OnThrottle halves the rate.
func (a *AdaptiveLimiter) OnThrottle(engine string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialRate == rate.Inf {
		return
	}
	next := a.currentRate * 0.5
	if next < a.initialRate/4 {
		next = a.initialRate / 4
	}
	a.set(next)
	zap.L().Warn("search: engine throttled, reducing rate",
		zap.String("engine", engine),
		zap.Float64("rate", float64(next)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.currentRate = r
	a.limiter.SetLimit(r)
}
