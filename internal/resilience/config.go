package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/config"
)

// FetchRetry is the retry policy for page, PDF and OCR calls made for
// source. fetch.max_retries counts every attempt including the first.
func FetchRetry(c config.FetchConfig, source string) RetryConfig {
	rc := DefaultRetryConfig()
	rc.InitialBackoff = time.Second
	if c.MaxRetries > 0 {
		rc.MaxAttempts = c.MaxRetries
	}
	rc.OnRetry = func(attempt int, err error) {
		zap.L().Debug("fetch attempt failed, retrying",
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return rc
}

// SearchBreaker is the per-engine circuit policy. Zero config values keep
// the defaults. A cancelled search does not count against the engine.
func SearchBreaker(c config.SearchConfig) CircuitBreakerConfig {
	cb := DefaultCircuitBreakerConfig()
	if c.CircuitThreshold > 0 {
		cb.FailureThreshold = c.CircuitThreshold
	}
	if c.CircuitResetSecs > 0 {
		cb.ResetTimeout = time.Duration(c.CircuitResetSecs) * time.Second
	}
	cb.ShouldTrip = func(err error) bool {
		return err != nil && !errors.Is(err, context.Canceled)
	}
	cb.OnStateChange = func(engine string, from, to CircuitState) {
		zap.L().Info("search circuit changed",
			zap.String("engine", engine),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return cb
}
