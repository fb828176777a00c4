package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// MomentumDCAConfig parametrizes the MomentumDCA strategy.
type MomentumDCAConfig struct {
	// FearThreshold is the F&G confirmation gate for buys.
	FearThreshold int
	// MinRedDays is the consecutive-decline streak required to buy.
	MinRedDays int
	// SellThreshold is the F&G value at or above which eligible lots exit.
	SellThreshold int
	// HoldDays is the minimum hold period before a lot may be sold.
	HoldDays int
	// DCAAmountUSD is the quote amount per buy.
	DCAAmountUSD decimal.Decimal
	// MaxCapitalUSD is the capital ceiling across open lots.
	MaxCapitalUSD decimal.Decimal
}

// DefaultMomentumDCAConfig returns the stock parameters.
func DefaultMomentumDCAConfig() MomentumDCAConfig {
	return MomentumDCAConfig{
		FearThreshold: 30,
		MinRedDays:    3,
		SellThreshold: 50,
		HoldDays:      60,
		DCAAmountUSD:  decimal.NewFromInt(500),
		MaxCapitalUSD: decimal.NewFromInt(5000),
	}
}

// MomentumDCAConfigFromParams maps the flat parameter set onto the config.
func MomentumDCAConfigFromParams(p Params) MomentumDCAConfig {
	cfg := DefaultMomentumDCAConfig()
	if p.FearThreshold != 0 {
		cfg.FearThreshold = p.FearThreshold
	}
	if p.MinRedDays != 0 {
		cfg.MinRedDays = p.MinRedDays
	}
	if p.SellThreshold != 0 {
		cfg.SellThreshold = p.SellThreshold
	}
	if p.HoldDays != 0 {
		cfg.HoldDays = p.HoldDays
	}
	if p.DCAAmountUSD != 0 {
		cfg.DCAAmountUSD = decimal.NewFromFloat(p.DCAAmountUSD)
	}
	if p.MaxCapitalUSD != 0 {
		cfg.MaxCapitalUSD = decimal.NewFromFloat(p.MaxCapitalUSD)
	}
	return cfg
}

// Validate rejects out-of-domain parameters.
func (c MomentumDCAConfig) Validate() error {
	fail := func(field, reason string) error {
		return &domain.StrategyConfigError{Strategy: NameMomentumDCA, Field: field, Reason: reason}
	}
	if c.FearThreshold < 0 || c.FearThreshold > 100 {
		return fail("fear_threshold", fmt.Sprintf("must be in [0,100], got %d", c.FearThreshold))
	}
	if c.SellThreshold < 0 || c.SellThreshold > 100 {
		return fail("sell_threshold", fmt.Sprintf("must be in [0,100], got %d", c.SellThreshold))
	}
	if c.MinRedDays < 1 {
		return fail("min_red_days", fmt.Sprintf("must be >= 1, got %d", c.MinRedDays))
	}
	if c.HoldDays < 1 {
		return fail("hold_days", fmt.Sprintf("must be >= 1, got %d", c.HoldDays))
	}
	if !c.DCAAmountUSD.IsPositive() {
		return fail("dca_amount_usd", fmt.Sprintf("must be > 0, got %s", c.DCAAmountUSD))
	}
	if !c.MaxCapitalUSD.IsPositive() {
		return fail("max_capital_usd", fmt.Sprintf("must be > 0, got %s", c.MaxCapitalUSD))
	}
	return nil
}

// momentumDCAState is the serializable internal state. PrevPrice feeds the
// red-day counter; the counter resets on any non-negative price change.
type momentumDCAState struct {
	PrevPrice *decimal.Decimal `json:"prev_price,omitempty"`
	RedDays   int              `json:"red_days"`
}

// MomentumDCA buys only when a consecutive-decline streak and a fear
// reading coincide. The two triggers are a strict AND, never an OR.
type MomentumDCA struct {
	cfg   MomentumDCAConfig
	state momentumDCAState
}

// NewMomentumDCA validates the config and constructs the strategy.
func NewMomentumDCA(cfg MomentumDCAConfig) (*MomentumDCA, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MomentumDCA{cfg: cfg}, nil
}

func (s *MomentumDCA) Name() string { return NameMomentumDCA }

func (s *MomentumDCA) Description() string {
	return "DCA after N consecutive red days with fear confirmation"
}

// Evaluate advances the red-day counter from the price change since the
// previous step, then applies the AND of both triggers.
func (s *MomentumDCA) Evaluate(ctx domain.MarketContext) domain.StrategySignal {
	cfg := s.cfg
	fg := ctx.FearGreed

	if s.state.PrevPrice != nil {
		if ctx.Price.LessThan(*s.state.PrevPrice) {
			s.state.RedDays++
		} else {
			s.state.RedDays = 0
		}
	}
	p := ctx.Price
	s.state.PrevPrice = &p
	redDays := s.state.RedDays

	if redDays >= cfg.MinRedDays && fg <= cfg.FearThreshold {
		remaining := cfg.MaxCapitalUSD.Sub(ctx.TotalInvested)
		if remaining.LessThan(cfg.DCAAmountUSD) {
			return holdSignal(ctx, fmt.Sprintf("momentum trigger met but capital ceiling reached (%s invested)", ctx.TotalInvested.StringFixed(0)))
		}
		confidence := 0.5 + float64(redDays)*0.1
		if confidence > 1 {
			confidence = 1
		}
		return domain.StrategySignal{
			Action:     domain.ActionBuy,
			Confidence: confidence,
			Size:       cfg.DCAAmountUSD,
			Reason:     fmt.Sprintf("F&G=%d <= %d and %d consecutive red days", fg, cfg.FearThreshold, redDays),
			Timestamp:  ctx.Timestamp,
			Metadata: map[string]string{
				"fg":       fmt.Sprintf("%d", fg),
				"red_days": fmt.Sprintf("%d", redDays),
			},
		}
	}

	if fg >= cfg.SellThreshold {
		qty, n := eligibleSellQty(ctx, cfg.HoldDays)
		if n > 0 {
			return domain.StrategySignal{
				Action:     domain.ActionSell,
				Confidence: 0.75,
				Size:       qty,
				Reason:     fmt.Sprintf("F&G=%d >= %d, %d lot(s) past %dd hold", fg, cfg.SellThreshold, n, cfg.HoldDays),
				Timestamp:  ctx.Timestamp,
				Metadata:   map[string]string{"eligible_lots": fmt.Sprintf("%d", n)},
			}
		}
	}

	return holdSignal(ctx, fmt.Sprintf("F&G=%d, red_days=%d (need %d with F&G<=%d)", fg, redDays, cfg.MinRedDays, cfg.FearThreshold))
}

func (s *MomentumDCA) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.state)
}

func (s *MomentumDCA) Restore(raw json.RawMessage) error {
	if len(raw) == 0 {
		s.state = momentumDCAState{}
		return nil
	}
	var st momentumDCAState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("restore %s state: %w", NameMomentumDCA, err)
	}
	s.state = st
	return nil
}
