package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// Quoter supplies live top-of-book prices; the paper adapter trades
// against them without touching an exchange.
type Quoter interface {
	Quote(ctx context.Context) (domain.MarketPrice, error)
}

// Paper simulates fills at real bid/ask and persists its balances to a
// local JSON file, so a paper run survives restarts.
type Paper struct {
	quoter    Quoter
	feeRate   decimal.Decimal
	stateFile string
	state     paperState
}

type paperState struct {
	QuoteBalance decimal.Decimal `json:"quote_balance"`
	BaseBalance  decimal.Decimal `json:"base_balance"`
}

// NewPaper loads existing paper balances from stateFile, or starts with
// initialQuote when none exist. An empty stateFile keeps state in memory.
func NewPaper(quoter Quoter, initialQuote, feeRate decimal.Decimal, stateFile string) (*Paper, error) {
	p := &Paper{
		quoter:    quoter,
		feeRate:   feeRate,
		stateFile: stateFile,
		state:     paperState{QuoteBalance: initialQuote, BaseBalance: decimal.Zero},
	}
	if stateFile != "" {
		if data, err := os.ReadFile(stateFile); err == nil {
			if err := json.Unmarshal(data, &p.state); err != nil {
				return nil, fmt.Errorf("parse paper state %s: %w", stateFile, err)
			}
		}
	}
	return p, nil
}

func (p *Paper) Name() string { return "paper" }

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	quote, err := p.quoter.Quote(ctx)
	if err != nil {
		return domain.OrderResult{}, &domain.ExchangeError{Venue: "paper", Op: "quote", Transient: true, Err: err}
	}
	if !quote.Bid.IsPositive() || !quote.Ask.IsPositive() {
		return domain.OrderResult{}, &domain.ExchangeError{
			Venue: "paper", Op: "quote", Transient: true,
			Err: fmt.Errorf("non-positive book %s/%s", quote.Bid, quote.Ask),
		}
	}
	id := req.ClientOrderID
	if id == "" {
		id = uuid.NewString()
	}

	switch req.Side {
	case SideBuy:
		if req.QuoteAmount.GreaterThan(p.state.QuoteBalance) {
			return rejected(id, "insufficient paper quote balance"), nil
		}
		fillPrice := quote.Ask
		fee := req.QuoteAmount.Mul(p.feeRate)
		qty := req.QuoteAmount.Sub(fee).Div(fillPrice)
		p.state.QuoteBalance = p.state.QuoteBalance.Sub(req.QuoteAmount)
		p.state.BaseBalance = p.state.BaseBalance.Add(qty)
		if err := p.flush(); err != nil {
			return domain.OrderResult{}, err
		}
		return domain.OrderResult{OrderID: id, Status: domain.OrderFilled, FilledPrice: fillPrice, FilledSize: qty, Fee: fee, Timestamp: time.Now().UTC()}, nil

	case SideSell:
		if req.BaseQty.GreaterThan(p.state.BaseBalance) {
			return rejected(id, "insufficient paper base balance"), nil
		}
		fillPrice := quote.Bid
		gross := req.BaseQty.Mul(fillPrice)
		fee := gross.Mul(p.feeRate)
		p.state.BaseBalance = p.state.BaseBalance.Sub(req.BaseQty)
		p.state.QuoteBalance = p.state.QuoteBalance.Add(gross).Sub(fee)
		if err := p.flush(); err != nil {
			return domain.OrderResult{}, err
		}
		return domain.OrderResult{OrderID: id, Status: domain.OrderFilled, FilledPrice: fillPrice, FilledSize: req.BaseQty, Fee: fee, Timestamp: time.Now().UTC()}, nil

	default:
		return domain.OrderResult{}, &domain.ExchangeError{Venue: "paper", Op: "place_order", Err: fmt.Errorf("unknown side %q", req.Side)}
	}
}

func rejected(id, detail string) domain.OrderResult {
	return domain.OrderResult{OrderID: id, Status: domain.OrderRejected, ErrorDetail: detail}
}

func (p *Paper) Balances(_ context.Context) (map[string]domain.Balance, error) {
	return map[string]domain.Balance{
		"USDT": {Asset: "USDT", Free: p.state.QuoteBalance},
		"BTC":  {Asset: "BTC", Free: p.state.BaseBalance},
	}, nil
}

func (p *Paper) flush() error {
	if p.stateFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.stateFile), 0o755); err != nil {
		return fmt.Errorf("create paper state dir: %w", err)
	}
	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.stateFile, data, 0o644); err != nil {
		return fmt.Errorf("write paper state: %w", err)
	}
	return nil
}

func (p *Paper) Close() error { return nil }
