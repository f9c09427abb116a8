package workflow

import (
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/services"
)

// RetryPolicy decides whether a failed attempt is redelivered.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// RetryPermanent retries every failure until MaxAttempts, ignoring the
	// error kind.
	RetryPermanent bool
}

// PolicyFromConfig reads the worker retry settings.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.Workers.MaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay(),
		RetryPermanent: cfg.Workers.RetryPermanentFailures,
	}
}

// ShouldRetry reports whether the attempt that just failed with err gets
// another delivery.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return p.RetryPermanent || services.Retryable(err)
}

// Backoff returns the delay before the delivery following attempt:
// base, 2*base, 4*base, ...
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := min(attempt-1, 20)
	return p.BaseDelay * time.Duration(1<<shift)
}
