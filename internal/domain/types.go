package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the trade decision emitted by a strategy.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// OrderStatus reports how the executor disposed of an order.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
	OrderPartial  OrderStatus = "PARTIAL"
	OrderError    OrderStatus = "ERROR"
)

// PositionStatus tracks the lifecycle of a lot.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// MarketContext is the immutable snapshot of one time step handed to a
// strategy. Timestamps are strictly increasing within a run; strategies
// must never see the same or an earlier timestamp twice.
type MarketContext struct {
	Timestamp          time.Time       `json:"timestamp"`
	Price              decimal.Decimal `json:"price"`
	FearGreed          int             `json:"fear_greed"`
	FearGreedLabel     string          `json:"fear_greed_label"`
	ConsecutiveRedDays int             `json:"consecutive_red_days"`
	PortfolioValue     decimal.Decimal `json:"portfolio_value"`
	TotalInvested      decimal.Decimal `json:"total_invested"`
	OpenLots           []Position      `json:"open_lots,omitempty"`
}

// StrategySignal is produced fresh on every evaluation step. Size is a
// quote amount for BUY and a base quantity for SELL; it is zero for HOLD.
type StrategySignal struct {
	Action     Action            `json:"action"`
	Confidence float64           `json:"confidence"`
	Size       decimal.Decimal   `json:"size"`
	Reason     string            `json:"reason"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OrderResult is returned by the order-executor boundary. Strategies never
// construct one.
type OrderResult struct {
	OrderID     string          `json:"order_id"`
	Status      OrderStatus     `json:"status"`
	FilledPrice decimal.Decimal `json:"filled_price"`
	FilledSize  decimal.Decimal `json:"filled_size"`
	Fee         decimal.Decimal `json:"fee"`
	Timestamp   time.Time       `json:"timestamp"`
	ErrorDetail string          `json:"error_detail,omitempty"`
}

// Filled reports whether the order executed.
func (r OrderResult) Filled() bool { return r.Status == OrderFilled }

// Position is one DCA lot. Lots are never merged; each keeps its own cost
// basis. A CLOSED position is immutable.
type Position struct {
	EntryTime  time.Time        `json:"entry_time"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Size       decimal.Decimal   `json:"size"`
	QuoteCost  decimal.Decimal  `json:"quote_cost"`
	FGAtEntry  int              `json:"fg_at_entry"`
	Status     PositionStatus   `json:"status"`
	Mode       string           `json:"mode"`
	OrderID    string           `json:"order_id,omitempty"`
	ExitTime   *time.Time       `json:"exit_time,omitempty"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty"`
	PnLPct     *float64         `json:"pnl_pct,omitempty"`
}

// UnrealizedPnL returns the mark-to-market gain or loss of an open lot.
// Closed lots report zero.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.Status != PositionOpen {
		return decimal.Zero
	}
	return p.Size.Mul(price).Sub(p.QuoteCost)
}

// Balance is an asset balance on an exchange.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Total is free plus locked.
func (b Balance) Total() decimal.Decimal { return b.Free.Add(b.Locked) }

// MarketPrice is current top-of-book data for a pair.
type MarketPrice struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
}

// Mid is the bid/ask midpoint.
func (m MarketPrice) Mid() decimal.Decimal {
	return m.Bid.Add(m.Ask).Div(decimal.NewFromInt(2))
}

// FearGreedLabel maps an index value to its conventional classification.
func FearGreedLabel(fg int) string {
	switch {
	case fg <= 20:
		return "Extreme Fear"
	case fg <= 40:
		return "Fear"
	case fg <= 60:
		return "Neutral"
	case fg <= 80:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}
