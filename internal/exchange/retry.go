package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fearproto/fearproto/internal/domain"
)

// RetryPolicy bounds retries of transient exchange failures with
// exponential backoff. Fatal errors (auth, insufficient funds) are
// surfaced immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is 4 attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// statusChecker lets the retry loop verify whether a previous attempt
// actually landed before re-sending, so an idempotent order is never
// double-filled after an ambiguous failure.
type statusChecker interface {
	OrderStatus(ctx context.Context, clientOrderID string) (domain.OrderResult, bool, error)
}

// placeWithRetry drives fn until it succeeds, fails fatally, or the
// attempt budget runs out. Between attempts it asks the checker whether
// the order already exists under its client order ID.
func placeWithRetry(ctx context.Context, p RetryPolicy, checker statusChecker, clientOrderID string, fn func(context.Context) (domain.OrderResult, error)) (domain.OrderResult, error) {
	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 && checker != nil {
			// Pre-check: the previous attempt may have landed even though
			// the response was lost.
			if res, found, err := checker.OrderStatus(ctx, clientOrderID); err == nil && found {
				log.Debug().Str("client_order_id", clientOrderID).Msg("order found during retry pre-check")
				return res, nil
			}
		}
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		var exErr *domain.ExchangeError
		if !errors.As(err, &exErr) || !exErr.Transient {
			return domain.OrderResult{}, err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("transient exchange error, backing off")

		select {
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return domain.OrderResult{}, lastErr
}
