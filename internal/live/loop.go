// Package live runs a strategy on a schedule against real market data.
// Each iteration is atomic: cancellation is honored between iterations,
// never in the middle of one, so the ledger and state file stay coherent.
package live

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/dataprov"
	"github.com/fearproto/fearproto/internal/domain"
	"github.com/fearproto/fearproto/internal/exchange"
	"github.com/fearproto/fearproto/internal/ledger"
	"github.com/fearproto/fearproto/internal/state"
	"github.com/fearproto/fearproto/internal/strategy"
	"github.com/fearproto/fearproto/internal/telemetry"
)

// Runner drives one strategy over wall-clock time.
type Runner struct {
	strat    strategy.Strategy
	executor exchange.Executor
	led      *ledger.Ledger
	data     *dataprov.Historical
	states   *state.Manager
	metrics  *telemetry.Metrics
	interval time.Duration
	log      zerolog.Logger
}

// NewRunner wires the loop. Interval zero defaults to one hour.
func NewRunner(strat strategy.Strategy, executor exchange.Executor, led *ledger.Ledger,
	data *dataprov.Historical, states *state.Manager, metrics *telemetry.Metrics,
	interval time.Duration, log zerolog.Logger) *Runner {
	if interval == 0 {
		interval = time.Hour
	}
	return &Runner{
		strat:    strat,
		executor: executor,
		led:      led,
		data:     data,
		states:   states,
		metrics:  metrics,
		interval: interval,
		log:      log.With().Str("component", "live").Str("strategy", strat.Name()).Logger(),
	}
}

// Run restores persisted state, then iterates until ctx is cancelled,
// flushing state after every iteration and once more on the way out.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.restore(); err != nil {
		return err
	}

	r.log.Info().Dur("interval", r.interval).Str("executor", r.executor.Name()).Msg("live loop starting")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// First iteration runs immediately rather than waiting one interval.
	r.iterate(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("live loop stopping")
			return r.flush(time.Now().UTC())
		case <-ticker.C:
			// The iteration itself never observes cancellation; a stop
			// signal waits for the next loop turn.
			r.iterate(context.WithoutCancel(ctx))
		}
	}
}

func (r *Runner) restore() error {
	st, err := r.states.Load()
	if err != nil {
		return err
	}
	if st == nil {
		r.log.Info().Msg("no prior state, starting fresh")
		return nil
	}
	if st.StrategyName != r.strat.Name() {
		return &domain.InvalidStateError{
			Op:     "restore",
			Reason: "state file belongs to strategy " + st.StrategyName,
		}
	}
	if err := r.strat.Restore(st.Strategy); err != nil {
		return err
	}
	r.led.Restore(st.Lots, st.Cash, st.RealizedPnL, st.FeesPaid)
	r.log.Info().
		Time("last_run", st.LastRun).
		Int("lots", len(st.Lots)).
		Str("cash", st.Cash.StringFixed(2)).
		Msg("restored state")
	return nil
}

func (r *Runner) iterate(ctx context.Context) {
	now := time.Now().UTC()
	r.metrics.Iterations.Inc()

	point, price, err := r.data.Snapshot(ctx)
	if err != nil {
		r.metrics.Errors.WithLabelValues("data").Inc()
		r.log.Error().Err(err).Msg("market snapshot failed, skipping iteration")
		return
	}
	r.metrics.FearGreed.Set(float64(point.Value))
	r.metrics.PortfolioValue.Set(toF64(r.led.MarkToMarket(price)))
	r.metrics.OpenLots.Set(float64(len(r.led.OpenLots())))

	mc := domain.MarketContext{
		Timestamp:      now,
		Price:          price,
		FearGreed:      point.Value,
		FearGreedLabel: point.Label,
		PortfolioValue: r.led.MarkToMarket(price),
		TotalInvested:  r.led.TotalInvested(),
		OpenLots:       r.led.OpenLots(),
	}

	sig := r.strat.Evaluate(mc)
	r.metrics.Signals.WithLabelValues(string(sig.Action)).Inc()
	r.log.Info().
		Str("action", string(sig.Action)).
		Float64("confidence", sig.Confidence).
		Int("fg", point.Value).
		Str("price", price.StringFixed(2)).
		Str("reason", sig.Reason).
		Msg("evaluated")

	if sig.Action != domain.ActionHold {
		r.execute(ctx, sig, price)
	}

	if err := r.flush(now); err != nil {
		r.metrics.Errors.WithLabelValues("state").Inc()
		r.log.Error().Err(err).Msg("state flush failed")
	}
}

func (r *Runner) execute(ctx context.Context, sig domain.StrategySignal, price decimal.Decimal) {
	req, err := exchange.RequestFromSignal(sig, price, uuid.NewString())
	if err != nil {
		r.metrics.Errors.WithLabelValues("order").Inc()
		r.log.Error().Err(err).Msg("bad signal")
		return
	}
	res, err := r.executor.PlaceOrder(ctx, req)
	if err != nil {
		r.metrics.Errors.WithLabelValues("order").Inc()
		var exErr *domain.ExchangeError
		if errors.As(err, &exErr) {
			r.log.Error().Err(err).Bool("transient", exErr.Transient).Msg("order failed")
		} else {
			r.log.Error().Err(err).Msg("order failed")
		}
		return
	}
	r.metrics.Orders.WithLabelValues(string(res.Status)).Inc()
	if !res.Filled() {
		r.log.Warn().Str("status", string(res.Status)).Str("detail", res.ErrorDetail).Msg("order not filled")
		return
	}
	if err := r.led.Apply(res, sig); err != nil {
		r.metrics.Errors.WithLabelValues("ledger").Inc()
		r.log.Error().Err(err).Msg("ledger apply failed")
		return
	}
	r.log.Info().
		Str("order_id", res.OrderID).
		Str("filled_price", res.FilledPrice.StringFixed(2)).
		Str("filled_size", res.FilledSize.String()).
		Str("fee", res.Fee.StringFixed(4)).
		Msg("order filled")
}

func (r *Runner) flush(now time.Time) error {
	snap, err := r.strat.Snapshot()
	if err != nil {
		return err
	}
	return r.states.Save(&state.ExecutorState{
		StrategyName: r.strat.Name(),
		Strategy:     snap,
		Lots:         r.led.AllLots(),
		Cash:         r.led.Cash(),
		RealizedPnL:  r.led.RealizedPnL(),
		FeesPaid:     r.led.FeesPaid(),
		LastRun:      now,
	})
}

func toF64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
