package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fearproto/fearproto/internal/domain"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

type scriptedChecker struct {
	result domain.OrderResult
	found  bool
	calls  int
}

func (c *scriptedChecker) OrderStatus(_ context.Context, _ string) (domain.OrderResult, bool, error) {
	c.calls++
	return c.result, c.found, nil
}

func transientErr() error {
	return &domain.ExchangeError{Venue: "test", Op: "place", Transient: true, Err: errors.New("timeout")}
}

func fatalErr() error {
	return &domain.ExchangeError{Venue: "test", Op: "place", Transient: false, Err: errors.New("insufficient funds")}
}

func TestPlaceWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	res, err := placeWithRetry(context.Background(), fastPolicy(), &scriptedChecker{}, "c1",
		func(context.Context) (domain.OrderResult, error) {
			attempts++
			if attempts < 3 {
				return domain.OrderResult{}, transientErr()
			}
			return domain.OrderResult{OrderID: "x", Status: domain.OrderFilled}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, res.Filled())
}

func TestPlaceWithRetry_FatalErrorNotRetried(t *testing.T) {
	attempts := 0
	_, err := placeWithRetry(context.Background(), fastPolicy(), &scriptedChecker{}, "c1",
		func(context.Context) (domain.OrderResult, error) {
			attempts++
			return domain.OrderResult{}, fatalErr()
		})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	var exErr *domain.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.False(t, exErr.Transient)
}

func TestPlaceWithRetry_BudgetExhausted(t *testing.T) {
	attempts := 0
	_, err := placeWithRetry(context.Background(), fastPolicy(), &scriptedChecker{}, "c1",
		func(context.Context) (domain.OrderResult, error) {
			attempts++
			return domain.OrderResult{}, transientErr()
		})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}

// An ambiguous failure whose order actually landed must be recovered by
// the status pre-check, never re-sent.
func TestPlaceWithRetry_IdempotencyPreCheck(t *testing.T) {
	landed := domain.OrderResult{
		OrderID:     "srv-1",
		Status:      domain.OrderFilled,
		FilledPrice: decimal.NewFromInt(100),
		FilledSize:  decimal.NewFromInt(1),
	}
	checker := &scriptedChecker{result: landed, found: true}
	attempts := 0
	res, err := placeWithRetry(context.Background(), fastPolicy(), checker, "c1",
		func(context.Context) (domain.OrderResult, error) {
			attempts++
			return domain.OrderResult{}, transientErr()
		})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "the order must not be re-sent once found")
	assert.Equal(t, "srv-1", res.OrderID)
	assert.Equal(t, 1, checker.calls)
}

func TestPlaceWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := placeWithRetry(ctx, fastPolicy(), &scriptedChecker{}, "c1",
		func(context.Context) (domain.OrderResult, error) {
			return domain.OrderResult{}, transientErr()
		})
	assert.ErrorIs(t, err, context.Canceled)
}
