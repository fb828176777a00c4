package backtest

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
	"github.com/fearproto/fearproto/internal/finmath"
	"github.com/fearproto/fearproto/internal/ledger"
)

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
}

// TradeLogEntry records one executed fill.
type TradeLogEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Action     domain.Action   `json:"action"`
	OrderID    string          `json:"order_id"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Fee        decimal.Decimal `json:"fee"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
}

// Metrics are the final statistics of a run. Ratio fields are nil when the
// statistic is undefined for the series (degenerate returns, zero
// drawdown, no losing trades) rather than a misleading zero.
type Metrics struct {
	TotalReturn      float64  `json:"total_return"`
	AnnualizedReturn float64  `json:"annualized_return"`
	Sharpe           *float64 `json:"sharpe"`
	Sortino          *float64 `json:"sortino"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	Calmar           *float64 `json:"calmar"`
	WinRate          float64  `json:"win_rate"`
	AvgWin           float64  `json:"avg_win"`
	AvgLoss          float64  `json:"avg_loss"`
	ProfitFactor     *float64 `json:"profit_factor"`
	KellyFraction    float64  `json:"kelly_fraction"`
	TotalTrades      int      `json:"total_trades"`
	ClosedTrades     int      `json:"closed_trades"`
	AvgHoldDays      float64  `json:"avg_hold_days"`
	HoldReturn       float64  `json:"hold_return"`
	Alpha            float64  `json:"alpha"`
	FeesPaid         float64  `json:"fees_paid"`
}

// Result is the complete outcome of a run: equity curve, trade log, closed
// lots, and final metrics. It is read-only once produced.
type Result struct {
	StrategyName string            `json:"strategy"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Snapshots    []EquitySnapshot  `json:"snapshots"`
	Trades       []TradeLogEntry   `json:"trades"`
	ClosedLots   []domain.Position `json:"closed_lots"`
	FinalEquity  decimal.Decimal   `json:"final_equity"`
	Metrics      Metrics           `json:"metrics"`
}

// MarshalDeterministic serializes the result with stable field ordering,
// for byte-level run comparison.
func (r *Result) MarshalDeterministic() ([]byte, error) {
	return json.Marshal(r)
}

// buildResult invokes the financial math exactly once over the full equity
// series and trade log accumulated so far.
func buildResult(cfg Config, led *ledger.Ledger, snapshots []EquitySnapshot, trades []TradeLogEntry, firstPrice, lastPrice decimal.Decimal) *Result {
	snaps := make([]EquitySnapshot, len(snapshots))
	copy(snaps, snapshots)
	tlog := make([]TradeLogEntry, len(trades))
	copy(tlog, trades)
	closed := led.ClosedLots()

	equity := make([]float64, len(snaps))
	for i, s := range snaps {
		equity[i], _ = s.Equity.Float64()
	}
	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			returns = append(returns, equity[i]/equity[i-1]-1)
		}
	}

	initial, _ := led.InitialCapital().Float64()
	final, _ := snaps[len(snaps)-1].Equity.Float64()
	totalReturn := 0.0
	if initial != 0 {
		totalReturn = final/initial - 1
	}
	days := int(snaps[len(snaps)-1].Timestamp.Sub(snaps[0].Timestamp).Hours() / 24)
	if days < 1 {
		days = 1
	}
	annReturn := finmath.AnnualizedReturn(totalReturn, days)
	maxDD := finmath.MaxDrawdown(equity)

	m := Metrics{
		TotalReturn:      totalReturn,
		AnnualizedReturn: annReturn,
		MaxDrawdown:      maxDD,
	}
	if v, err := finmath.Sharpe(returns, cfg.RiskFree, cfg.PeriodsPerYear); err == nil {
		m.Sharpe = &v
	}
	if v, err := finmath.Sortino(returns, cfg.RiskFree, cfg.PeriodsPerYear); err == nil {
		m.Sortino = &v
	}
	if v, err := finmath.Calmar(annReturn, maxDD); err == nil {
		m.Calmar = &v
	}

	// Trade-level statistics from closed lots.
	var tradeReturns []float64
	var holdDays []float64
	for _, lot := range closed {
		if lot.PnLPct != nil {
			tradeReturns = append(tradeReturns, *lot.PnLPct/100)
		}
		if lot.ExitTime != nil {
			holdDays = append(holdDays, lot.ExitTime.Sub(lot.EntryTime).Hours()/24)
		}
	}
	var wins, losses []float64
	for _, r := range tradeReturns {
		if r > 0 {
			wins = append(wins, r)
		} else if r < 0 {
			losses = append(losses, r)
		}
	}
	if len(tradeReturns) > 0 {
		m.WinRate = float64(len(wins)) / float64(len(tradeReturns))
	}
	if len(wins) > 0 {
		m.AvgWin = meanOf(wins)
	}
	if len(losses) > 0 {
		m.AvgLoss = meanOf(losses)
	}
	if v, err := finmath.ProfitFactor(tradeReturns); err == nil {
		m.ProfitFactor = &v
	}
	m.KellyFraction = finmath.Kelly(m.WinRate, m.AvgWin, -m.AvgLoss, cfg.KellyCap)
	m.TotalTrades = len(tlog)
	m.ClosedTrades = len(closed)
	if len(holdDays) > 0 {
		m.AvgHoldDays = meanOf(holdDays)
	}

	// Buy-and-hold benchmark over the same window.
	fp, _ := firstPrice.Float64()
	lp, _ := lastPrice.Float64()
	if fp != 0 {
		m.HoldReturn = lp/fp - 1
	}
	m.Alpha = totalReturn - m.HoldReturn
	m.FeesPaid, _ = led.FeesPaid().Float64()

	return &Result{
		StrategyName: cfg.StrategyName,
		Start:        snaps[0].Timestamp,
		End:          snaps[len(snaps)-1].Timestamp,
		Snapshots:    snaps,
		Trades:       tlog,
		ClosedLots:   closed,
		FinalEquity:  snaps[len(snaps)-1].Equity,
		Metrics:      m,
	}
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
