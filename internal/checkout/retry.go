package checkout

import (
	"context"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration // first delay, doubled after every failure
}

func DefaultRetry() RetryPolicy { return RetryPolicy{Attempts: 3, Backoff: 100 * time.Millisecond} }

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Backoff << uint(attempts)
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func (p RetryPolicy) Do(ctx context.Context, log *zap.Logger, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	var last error
	err := backoff.RetryNotify(func() error {
		attempt++
		last = fn(ctx)
		if last != nil && !apperr.Retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, p.backOff(ctx), func(err error, d time.Duration) {
		log.Warn("retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("backoff", d), zap.Error(err))
	})
	if err != nil && ctx.Err() != nil && last != nil {
		// report what failed, not just that the caller gave up
		return last
	}
	return err
}
