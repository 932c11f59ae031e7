package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Strob0t/lifelog/internal/config"
)

// PermanentError marks an error that must not be retried.
type PermanentError = backoff.PermanentError

// Permanent wraps err so Retry returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Policy bounds a retried operation: at most MaxAttempts calls, waiting
// BaseDelay after the first failure and doubling up to MaxDelay, each wait
// randomized by ±Jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// PolicyFrom converts the retry config section.
func PolicyFrom(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = p.Jitter
	bo.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx) //nolint:gosec // attempts >= 1
}

// Retry calls op until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. name identifies the operation in logs and errors.
func Retry(ctx context.Context, p Policy, name string, op func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "retrying after failure",
			"op", name, "attempt", attempt, "max_attempts", p.MaxAttempts, "wait", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("%s (attempt %d/%d): %w", name, attempt, p.MaxAttempts, err)
	}
	return nil
}

// RetryValue is Retry for operations that produce a result.
func RetryValue[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, p, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
