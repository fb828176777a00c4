// Package ledger owns the position records of one run: open lots, closed
// lots, cash, fees, and realized PnL. The ledger is the single mutable
// resource of a run and is owned exclusively by the engine or the live
// loop; it is never shared across in-flight evaluations.
package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// Ledger applies executed orders and tracks the resulting lots. BUY opens a
// fresh lot every time; lots are never merged, preserving DCA cost-basis
// granularity. SELL closes oldest lots first.
type Ledger struct {
	initialCapital decimal.Decimal
	cash           decimal.Decimal
	lots           []domain.Position
	realizedPnL    decimal.Decimal
	feesPaid       decimal.Decimal
	mode           string
}

// New creates a ledger with the given starting cash.
func New(initialCapital decimal.Decimal, mode string) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		mode:           mode,
	}
}

// Apply routes a filled order into the ledger according to the signal that
// produced it. Unfilled orders are ignored.
func (l *Ledger) Apply(res domain.OrderResult, sig domain.StrategySignal) error {
	if !res.Filled() {
		return nil
	}
	switch sig.Action {
	case domain.ActionBuy:
		return l.applyBuy(res, sig)
	case domain.ActionSell:
		return l.applySell(res)
	case domain.ActionHold:
		return &domain.InvalidStateError{Op: "ledger apply", Reason: "HOLD signal produced an order"}
	default:
		return &domain.InvalidStateError{Op: "ledger apply", Reason: fmt.Sprintf("unknown action %q", sig.Action)}
	}
}

// applyBuy opens a new lot. The lot cost basis includes the fee, so equity
// bookkeeping stays conservative.
func (l *Ledger) applyBuy(res domain.OrderResult, sig domain.StrategySignal) error {
	cost := res.FilledPrice.Mul(res.FilledSize).Add(res.Fee)
	if cost.GreaterThan(l.cash) {
		return &domain.InvalidStateError{
			Op:     "ledger buy",
			Reason: fmt.Sprintf("fill cost %s exceeds cash %s", cost, l.cash),
		}
	}
	l.cash = l.cash.Sub(cost)
	l.feesPaid = l.feesPaid.Add(res.Fee)
	fg := 0
	if v, ok := sig.Metadata["fg"]; ok {
		fg, _ = strconv.Atoi(v)
	}
	l.lots = append(l.lots, domain.Position{
		EntryTime:  res.Timestamp,
		EntryPrice: res.FilledPrice,
		Size:       res.FilledSize,
		QuoteCost:  cost,
		FGAtEntry:  fg,
		Status:     domain.PositionOpen,
		Mode:       l.mode,
		OrderID:    res.OrderID,
	})
	return nil
}

// applySell closes lots FIFO. The last lot touched may be split when the
// fill covers it only partially. Closing more size than is open is an
// InvalidStateError.
func (l *Ledger) applySell(res domain.OrderResult) error {
	qty := res.FilledSize
	if qty.GreaterThan(l.OpenSize()) {
		return &domain.InvalidStateError{
			Op:     "ledger sell",
			Reason: fmt.Sprintf("closing %s but only %s open", qty, l.OpenSize()),
		}
	}
	// Proceeds net of fee; the fee is apportioned per lot by closed size so
	// realized PnL and cash stay consistent.
	grossProceeds := res.FilledPrice.Mul(res.FilledSize)
	l.cash = l.cash.Add(grossProceeds).Sub(res.Fee)
	l.feesPaid = l.feesPaid.Add(res.Fee)
	feePerUnit := decimal.Zero
	if qty.IsPositive() {
		feePerUnit = res.Fee.Div(qty)
	}

	remaining := qty
	for i := range l.lots {
		if l.lots[i].Status != domain.PositionOpen || remaining.IsZero() {
			continue
		}
		lot := &l.lots[i]
		closeQty := lot.Size
		if closeQty.GreaterThan(remaining) {
			// Split: spin off the closed portion, shrink the open lot.
			closeQty = remaining
			costShare := lot.QuoteCost.Mul(closeQty).Div(lot.Size)
			closed := *lot
			closed.Size = closeQty
			closed.QuoteCost = costShare
			l.closeLot(&closed, res, closeQty, feePerUnit.Mul(closeQty))
			lot.Size = lot.Size.Sub(closeQty)
			lot.QuoteCost = lot.QuoteCost.Sub(costShare)
			l.lots = append(l.lots, closed)
		} else {
			l.closeLot(lot, res, closeQty, feePerUnit.Mul(closeQty))
		}
		remaining = remaining.Sub(closeQty)
	}
	if remaining.IsPositive() {
		return &domain.InvalidStateError{Op: "ledger sell", Reason: "unclosed remainder after FIFO walk"}
	}
	return nil
}

func (l *Ledger) closeLot(lot *domain.Position, res domain.OrderResult, qty, feeShare decimal.Decimal) {
	exitPrice := res.FilledPrice
	exitTime := res.Timestamp
	pnl := exitPrice.Mul(qty).Sub(feeShare).Sub(lot.QuoteCost)
	l.realizedPnL = l.realizedPnL.Add(pnl)
	pnlPct := 0.0
	if lot.EntryPrice.IsPositive() {
		pnlPct, _ = exitPrice.Sub(lot.EntryPrice).Div(lot.EntryPrice).Mul(decimal.NewFromInt(100)).Float64()
	}
	lot.Status = domain.PositionClosed
	lot.ExitPrice = &exitPrice
	lot.ExitTime = &exitTime
	lot.PnLPct = &pnlPct
}

// MarkToMarket values the portfolio at the given price: cash plus open lots.
func (l *Ledger) MarkToMarket(price decimal.Decimal) decimal.Decimal {
	return l.cash.Add(l.OpenSize().Mul(price))
}

// CloseAll closes every open lot at the given price and returns the
// realized PnL of the batch.
func (l *Ledger) CloseAll(price decimal.Decimal, ts time.Time) decimal.Decimal {
	batch := decimal.Zero
	res := domain.OrderResult{
		Status:      domain.OrderFilled,
		FilledPrice: price,
		Timestamp:   ts,
	}
	for i := range l.lots {
		if l.lots[i].Status != domain.PositionOpen {
			continue
		}
		lot := &l.lots[i]
		proceeds := price.Mul(lot.Size)
		l.cash = l.cash.Add(proceeds)
		before := l.realizedPnL
		l.closeLot(lot, res, lot.Size, decimal.Zero)
		batch = batch.Add(l.realizedPnL.Sub(before))
	}
	return batch
}

// OpenSize is the total base quantity across open lots.
func (l *Ledger) OpenSize() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		if lot.Status == domain.PositionOpen {
			total = total.Add(lot.Size)
		}
	}
	return total
}

// TotalInvested is the quote cost tied up in open lots.
func (l *Ledger) TotalInvested() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		if lot.Status == domain.PositionOpen {
			total = total.Add(lot.QuoteCost)
		}
	}
	return total
}

// UnrealizedPnL marks open lots against the given price.
func (l *Ledger) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		total = total.Add(lot.UnrealizedPnL(price))
	}
	return total
}

// OpenLots returns copies of the open lots, oldest first.
func (l *Ledger) OpenLots() []domain.Position {
	var out []domain.Position
	for _, lot := range l.lots {
		if lot.Status == domain.PositionOpen {
			out = append(out, lot)
		}
	}
	return out
}

// ClosedLots returns copies of the closed lots in close order.
func (l *Ledger) ClosedLots() []domain.Position {
	var out []domain.Position
	for _, lot := range l.lots {
		if lot.Status == domain.PositionClosed {
			out = append(out, lot)
		}
	}
	return out
}

// AllLots returns copies of every lot.
func (l *Ledger) AllLots() []domain.Position {
	out := make([]domain.Position, len(l.lots))
	copy(out, l.lots)
	return out
}

// Restore replaces the lot book and running totals, for resuming a
// persisted run.
func (l *Ledger) Restore(lots []domain.Position, cash, realized, fees decimal.Decimal) {
	l.lots = make([]domain.Position, len(lots))
	copy(l.lots, lots)
	l.cash = cash
	l.realizedPnL = realized
	l.feesPaid = fees
}

func (l *Ledger) Cash() decimal.Decimal           { return l.cash }
func (l *Ledger) InitialCapital() decimal.Decimal { return l.initialCapital }
func (l *Ledger) RealizedPnL() decimal.Decimal    { return l.realizedPnL }
func (l *Ledger) FeesPaid() decimal.Decimal       { return l.feesPaid }
