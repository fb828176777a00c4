// Package exchange is the order-executor boundary. Three adapters implement
// it: mock (deterministic fills for backtests), paper (real prices,
// simulated fills, local state), and live (REST adapter). Transient
// failures are retried inside this boundary and never surface to the
// strategy or the engine.
package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderRequest describes a market order. ClientOrderID is the idempotency
// key: adapters must be safe to retry a request carrying the same ID.
// QuoteAmount is set for buys, BaseQty for sells.
type OrderRequest struct {
	ClientOrderID string
	Side          Side
	QuoteAmount   decimal.Decimal
	BaseQty       decimal.Decimal
	PriceHint     decimal.Decimal
}

// Executor places orders and reports balances.
type Executor interface {
	Name() string
	PlaceOrder(ctx context.Context, req OrderRequest) (domain.OrderResult, error)
	Balances(ctx context.Context) (map[string]domain.Balance, error)
	Close() error
}

// RequestFromSignal translates a strategy signal into an order request with
// a fresh idempotency key. HOLD signals have no order.
func RequestFromSignal(sig domain.StrategySignal, priceHint decimal.Decimal, clientOrderID string) (OrderRequest, error) {
	switch sig.Action {
	case domain.ActionBuy:
		return OrderRequest{
			ClientOrderID: clientOrderID,
			Side:          SideBuy,
			QuoteAmount:   sig.Size,
			PriceHint:     priceHint,
		}, nil
	case domain.ActionSell:
		return OrderRequest{
			ClientOrderID: clientOrderID,
			Side:          SideSell,
			BaseQty:       sig.Size,
			PriceHint:     priceHint,
		}, nil
	default:
		return OrderRequest{}, fmt.Errorf("no order for action %q", sig.Action)
	}
}
