// Package resilience provides retry/backoff and circuit-breaker
// primitives. The lifecycle agent's registration retry uses
// BackoffConfig; the registry and KV client use none of them.
package resilience

import (
	"context"
	"time"
)

// BackoffConfig mirrors the registration-retry schedule of spec §4.C:
// delay = min(InitialDelay * 2^(attempt-1), MaxDelay), exponent capped.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxExponent  int
}

// DefaultBackoff matches the lifecycle agent's registration retry: 5s,
// 10s, 20s, 40s, 60s, 60s, ...
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
		MaxExponent:  6,
	}
}

// Delay returns the backoff delay for the given 1-indexed attempt.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt - 1
	if c.MaxExponent > 0 && exp > c.MaxExponent {
		exp = c.MaxExponent
	}
	d := c.InitialDelay
	for i := 0; i < exp; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Sleep blocks for the attempt's backoff delay or until ctx is cancelled.
func (c BackoffConfig) Sleep(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.Delay(attempt)):
		return nil
	}
}

// RetryConfig configures a bounded exponential-backoff retry loop for
// one-shot operations (KV/bus calls), distinct from the agent's unbounded
// registration retry above.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns sensible defaults for transient infra calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry executes fn, retrying on error with exponential backoff until
// MaxAttempts is exhausted or ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}
	return lastErr
}
