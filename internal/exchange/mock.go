package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// Mock is the deterministic fill simulator used by backtests. It fills at
// the price set for the current step, applies configurable slippage and
// fees, and answers only FILLED or REJECTED — never PARTIAL. Order IDs are
// sequential so two identical runs produce byte-identical results.
type Mock struct {
	price        decimal.Decimal
	now          time.Time
	feeRate      decimal.Decimal
	slippageRate decimal.Decimal
	quoteBalance decimal.Decimal
	baseBalance  decimal.Decimal
	baseAsset    string
	quoteAsset   string
	orderSeq     int
}

// MockConfig configures the simulator.
type MockConfig struct {
	InitialPrice decimal.Decimal
	FeeRate      decimal.Decimal
	SlippageRate decimal.Decimal
	InitialQuote decimal.Decimal
	InitialBase  decimal.Decimal
	BaseAsset    string
	QuoteAsset   string
}

// NewMock creates the simulator. Zero assets default to BTC/USDT.
func NewMock(cfg MockConfig) *Mock {
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = "BTC"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &Mock{
		price:        cfg.InitialPrice,
		feeRate:      cfg.FeeRate,
		slippageRate: cfg.SlippageRate,
		quoteBalance: cfg.InitialQuote,
		baseBalance:  cfg.InitialBase,
		baseAsset:    cfg.BaseAsset,
		quoteAsset:   cfg.QuoteAsset,
	}
}

func (m *Mock) Name() string { return "mock" }

// SetStep advances the simulated clock and price. The engine calls this
// once per context before submitting any order, which pins every fill to
// the step being processed.
func (m *Mock) SetStep(price decimal.Decimal, ts time.Time) {
	m.price = price
	m.now = ts
}

// PlaceOrder fills at the step price adjusted for slippage. Insufficient
// balance rejects the order; it never errors for historical replay. When no
// step price is pinned the request's price hint is used, which lets the
// adapter serve dry runs outside a replay.
func (m *Mock) PlaceOrder(_ context.Context, req OrderRequest) (domain.OrderResult, error) {
	m.orderSeq++
	id := fmt.Sprintf("mock-%06d", m.orderSeq)
	price, ts := m.price, m.now
	if price.IsZero() && !req.PriceHint.IsZero() {
		price, ts = req.PriceHint, time.Now().UTC()
	}

	switch req.Side {
	case SideBuy:
		if req.QuoteAmount.GreaterThan(m.quoteBalance) {
			return m.reject(id, "insufficient quote balance"), nil
		}
		one := decimal.NewFromInt(1)
		fillPrice := price.Mul(one.Add(m.slippageRate))
		fee := req.QuoteAmount.Mul(m.feeRate)
		filledQty := req.QuoteAmount.Sub(fee).Div(fillPrice)
		m.quoteBalance = m.quoteBalance.Sub(req.QuoteAmount)
		m.baseBalance = m.baseBalance.Add(filledQty)
		return domain.OrderResult{
			OrderID:     id,
			Status:      domain.OrderFilled,
			FilledPrice: fillPrice,
			FilledSize:  filledQty,
			Fee:         fee,
			Timestamp:   ts,
		}, nil

	case SideSell:
		if req.BaseQty.GreaterThan(m.baseBalance) {
			return m.reject(id, "insufficient base balance"), nil
		}
		one := decimal.NewFromInt(1)
		fillPrice := price.Mul(one.Sub(m.slippageRate))
		gross := req.BaseQty.Mul(fillPrice)
		fee := gross.Mul(m.feeRate)
		m.baseBalance = m.baseBalance.Sub(req.BaseQty)
		m.quoteBalance = m.quoteBalance.Add(gross).Sub(fee)
		return domain.OrderResult{
			OrderID:     id,
			Status:      domain.OrderFilled,
			FilledPrice: fillPrice,
			FilledSize:  req.BaseQty,
			Fee:         fee,
			Timestamp:   ts,
		}, nil

	default:
		return domain.OrderResult{}, &domain.ExchangeError{
			Venue: "mock", Op: "place_order", Transient: false,
			Err: fmt.Errorf("unknown side %q", req.Side),
		}
	}
}

func (m *Mock) reject(id, detail string) domain.OrderResult {
	return domain.OrderResult{
		OrderID:     id,
		Status:      domain.OrderRejected,
		FilledPrice: decimal.Zero,
		FilledSize:  decimal.Zero,
		Fee:         decimal.Zero,
		Timestamp:   m.now,
		ErrorDetail: detail,
	}
}

func (m *Mock) Balances(_ context.Context) (map[string]domain.Balance, error) {
	return map[string]domain.Balance{
		m.quoteAsset: {Asset: m.quoteAsset, Free: m.quoteBalance},
		m.baseAsset:  {Asset: m.baseAsset, Free: m.baseBalance},
	}, nil
}

func (m *Mock) Close() error { return nil }
