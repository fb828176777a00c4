// Package backtest replays strategies over historical fear/greed and price
// series. Replay is single-threaded and fully deterministic: context
// ordering is part of the causality contract, so no parallelism is allowed
// inside one run.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
	"github.com/fearproto/fearproto/internal/exchange"
	"github.com/fearproto/fearproto/internal/ledger"
	"github.com/fearproto/fearproto/internal/strategy"
)

// Bar is one time step of input data.
type Bar struct {
	Date      time.Time
	Price     decimal.Decimal
	FearGreed int
}

// Config drives one backtest run.
type Config struct {
	StrategyName   string
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	FeeRate        decimal.Decimal
	SlippageRate   decimal.Decimal
	// PeriodsPerYear annualizes Sharpe/Sortino; 365 for daily bars.
	PeriodsPerYear int
	// KellyCap bounds the Kelly sizing suggestion in the final metrics.
	KellyCap float64
	RiskFree float64
}

func (c Config) withDefaults() Config {
	if c.PeriodsPerYear == 0 {
		c.PeriodsPerYear = 365
	}
	if c.KellyCap == 0 {
		c.KellyCap = 1.0
	}
	return c
}

// Engine drives one strategy over a context sequence. The same Step path
// serves batch and streaming runs, which is what makes the two modes
// equivalent over any prefix.
type Engine struct {
	cfg   Config
	strat strategy.Strategy
	led   *ledger.Ledger
	sim   *exchange.Mock

	lastTS    time.Time
	prevPrice *decimal.Decimal
	redDays   int
	steps     int

	snapshots  []EquitySnapshot
	tradeLog   []TradeLogEntry
	firstPrice decimal.Decimal
	lastPrice  decimal.Decimal
}

// New constructs an engine with a deterministic fill simulator.
func New(cfg Config, strat strategy.Strategy) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:   cfg,
		strat: strat,
		led:   ledger.New(cfg.InitialCapital, "backtest"),
		sim: exchange.NewMock(exchange.MockConfig{
			FeeRate:      cfg.FeeRate,
			SlippageRate: cfg.SlippageRate,
			InitialQuote: cfg.InitialCapital,
		}),
	}
}

// Step processes one bar: evaluate the strategy, execute any signal
// through the simulator, apply the fill to the ledger, and append an
// equity snapshot. Bars must arrive in strictly increasing time order;
// anything else is an InvalidStateError. The step never reads data beyond
// the bar being processed.
func (e *Engine) Step(ctx context.Context, bar Bar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.lastTS.IsZero() && !bar.Date.After(e.lastTS) {
		return &domain.InvalidStateError{
			Op:     "backtest step",
			Reason: fmt.Sprintf("context timestamp %s not after %s", bar.Date.Format("2006-01-02"), e.lastTS.Format("2006-01-02")),
		}
	}
	if !bar.Price.IsPositive() {
		return &domain.InvalidStateError{Op: "backtest step", Reason: fmt.Sprintf("non-positive price %s", bar.Price)}
	}
	if bar.FearGreed < 0 || bar.FearGreed > 100 {
		return &domain.InvalidStateError{Op: "backtest step", Reason: fmt.Sprintf("fear/greed %d out of range", bar.FearGreed)}
	}

	if e.prevPrice != nil && bar.Price.LessThan(*e.prevPrice) {
		e.redDays++
	} else if e.prevPrice != nil {
		e.redDays = 0
	}
	p := bar.Price
	e.prevPrice = &p
	e.lastTS = bar.Date
	e.lastPrice = bar.Price
	if e.steps == 0 {
		e.firstPrice = bar.Price
	}
	e.steps++

	e.sim.SetStep(bar.Price, bar.Date)

	mctx := domain.MarketContext{
		Timestamp:          bar.Date,
		Price:              bar.Price,
		FearGreed:          bar.FearGreed,
		FearGreedLabel:     domain.FearGreedLabel(bar.FearGreed),
		ConsecutiveRedDays: e.redDays,
		PortfolioValue:     e.led.MarkToMarket(bar.Price),
		TotalInvested:      e.led.TotalInvested(),
		OpenLots:           e.led.OpenLots(),
	}

	sig := e.strat.Evaluate(mctx)

	if sig.Action != domain.ActionHold && sig.Size.IsPositive() {
		if err := e.execute(ctx, sig); err != nil {
			return err
		}
	}

	e.snapshots = append(e.snapshots, EquitySnapshot{
		Timestamp: bar.Date,
		Equity:    e.led.MarkToMarket(bar.Price),
	})
	return nil
}

func (e *Engine) execute(ctx context.Context, sig domain.StrategySignal) error {
	size := sig.Size
	if sig.Action == domain.ActionSell {
		// Never try to close more than is open; dust from fee rounding
		// would otherwise trip the ledger's over-close guard.
		open := e.led.OpenSize()
		if size.GreaterThan(open) {
			size = open
		}
		if !size.IsPositive() {
			return nil
		}
		sig.Size = size
	}

	req, err := exchange.RequestFromSignal(sig, e.lastPrice, fmt.Sprintf("bt-%06d", e.steps))
	if err != nil {
		return err
	}
	res, err := e.sim.PlaceOrder(ctx, req)
	if err != nil {
		return err
	}
	if !res.Filled() {
		log.Debug().Str("action", string(sig.Action)).Str("detail", res.ErrorDetail).Msg("simulated order rejected")
		return nil
	}
	if err := e.led.Apply(res, sig); err != nil {
		return err
	}
	e.tradeLog = append(e.tradeLog, TradeLogEntry{
		Timestamp:  res.Timestamp,
		Action:     sig.Action,
		OrderID:    res.OrderID,
		Price:      res.FilledPrice,
		Size:       res.FilledSize,
		Fee:        res.Fee,
		Confidence: sig.Confidence,
		Reason:     sig.Reason,
	})
	return nil
}

// Run replays a full bar sequence (batch mode) and finalizes the result.
func (e *Engine) Run(ctx context.Context, bars []Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, &domain.DataUnavailableError{Source: "backtest", Detail: "empty bar sequence"}
	}
	for _, bar := range bars {
		if err := e.Step(ctx, bar); err != nil {
			return nil, err
		}
	}
	return e.Result()
}

// Result finalizes metrics over everything processed so far. In streaming
// mode it may be called after any step; the result equals a batch run
// truncated to the same prefix.
func (e *Engine) Result() (*Result, error) {
	if e.steps == 0 {
		return nil, &domain.InvalidStateError{Op: "backtest result", Reason: "no steps processed"}
	}
	return buildResult(e.cfg, e.led, e.snapshots, e.tradeLog, e.firstPrice, e.lastPrice), nil
}

// Ledger exposes the run's ledger for inspection in status reporting.
func (e *Engine) Ledger() *ledger.Ledger { return e.led }
