// Package reliability wraps model invocations with rate limiting, retries,
// circuit breaking, and timeouts. The layers compose in that order so a
// request admitted by the limiter may retry, and each attempt is gated by
// the breaker and bounded by the per-attempt timeout.
package reliability

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Factor is the backoff multiplier between attempts.
	Factor float64

	// Jitter is the fractional randomization applied to each delay;
	// 0.2 means the delay lands in [0.8d, 1.2d].
	Jitter float64
}

// DefaultRetryConfig returns the baseline backoff tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
		Jitter:       0.2,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Factor <= 1 {
		c.Factor = 2.0
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = 0.2
	}
	return c
}

// delay returns the backoff before attempt n+1 (n is 1-based).
func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= c.Factor
		if d >= float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
			break
		}
	}
	if c.Jitter > 0 {
		// #nosec G404 -- jitter does not require cryptographic randomness
		d *= 1 + c.Jitter*(2*rand.Float64()-1)
	}
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// Retry runs op with exponential backoff. retryable decides whether a
// failure is transient; permanent failures return immediately. The last
// error is returned after the attempts are exhausted.
func Retry(ctx context.Context, cfg RetryConfig, retryable func(error) bool, op func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.delay(attempt)):
		}
	}
	return lastErr
}
