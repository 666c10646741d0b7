package client

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/avast/retry-go"
)

// RetryPolicy is exponential backoff with a cap: the delay after attempt n
// (zero based) is min(BaseDelay * Multiplier^n, MaxDelay).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

func (p RetryPolicy) Backoff(attempt uint) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// RetryRequest runs operation until it succeeds or the attempts run out and
// returns the last error. Cancellation of ctx stops the loop.
func (c *Client) RetryRequest(ctx context.Context, operation func() error) error {
	policy := c.opts.Retry

	return retry.Do(operation,
		retry.Context(ctx),
		retry.Attempts(uint(policy.MaxAttempts)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return policy.Backoff(n)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("attempt failed",
				slog.Uint64("attempt", uint64(n)+1),
				slog.Int("max_attempts", policy.MaxAttempts),
				slog.String("error", err.Error()))
		}),
	)
}
