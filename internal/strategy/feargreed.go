package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// FearGreedDCAConfig parametrizes the FearGreedDCA strategy.
type FearGreedDCAConfig struct {
	// BuyThreshold is the F&G value at or below which a BUY fires.
	BuyThreshold int
	// SellThreshold is the F&G value at or above which eligible lots exit.
	SellThreshold int
	// HoldDays is the minimum hold period before a lot may be sold.
	HoldDays int
	// CooldownDays gates repeat buys. Zero means "same as HoldDays".
	CooldownDays int
	// DCAAmountUSD is the quote amount per buy.
	DCAAmountUSD decimal.Decimal
	// MaxCapitalUSD is the capital ceiling across open lots.
	MaxCapitalUSD decimal.Decimal
}

// DefaultFearGreedDCAConfig returns the stock parameters.
func DefaultFearGreedDCAConfig() FearGreedDCAConfig {
	return FearGreedDCAConfig{
		BuyThreshold:  20,
		SellThreshold: 50,
		HoldDays:      120,
		DCAAmountUSD:  decimal.NewFromInt(500),
		MaxCapitalUSD: decimal.NewFromInt(5000),
	}
}

// FearGreedDCAConfigFromParams maps the flat parameter set onto the config,
// keeping defaults for unset fields.
func FearGreedDCAConfigFromParams(p Params) FearGreedDCAConfig {
	cfg := DefaultFearGreedDCAConfig()
	if p.BuyThreshold != 0 {
		cfg.BuyThreshold = p.BuyThreshold
	}
	if p.SellThreshold != 0 {
		cfg.SellThreshold = p.SellThreshold
	}
	if p.HoldDays != 0 {
		cfg.HoldDays = p.HoldDays
	}
	if p.CooldownDays != 0 {
		cfg.CooldownDays = p.CooldownDays
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
func (c FearGreedDCAConfig) Validate() error {
	fail := func(field, reason string) error {
		return &domain.StrategyConfigError{Strategy: NameFearGreedDCA, Field: field, Reason: reason}
	}
	if c.BuyThreshold < 0 || c.BuyThreshold > 100 {
		return fail("buy_threshold", fmt.Sprintf("must be in [0,100], got %d", c.BuyThreshold))
	}
	if c.SellThreshold < 0 || c.SellThreshold > 100 {
		return fail("sell_threshold", fmt.Sprintf("must be in [0,100], got %d", c.SellThreshold))
	}
	if c.BuyThreshold >= c.SellThreshold {
		return fail("buy_threshold", fmt.Sprintf("must be below sell_threshold (%d >= %d)", c.BuyThreshold, c.SellThreshold))
	}
	if c.HoldDays < 1 {
		return fail("hold_days", fmt.Sprintf("must be >= 1, got %d", c.HoldDays))
	}
	if c.CooldownDays < 0 {
		return fail("cooldown_days", fmt.Sprintf("must be >= 0, got %d", c.CooldownDays))
	}
	if !c.DCAAmountUSD.IsPositive() {
		return fail("dca_amount_usd", fmt.Sprintf("must be > 0, got %s", c.DCAAmountUSD))
	}
	if !c.MaxCapitalUSD.IsPositive() {
		return fail("max_capital_usd", fmt.Sprintf("must be > 0, got %s", c.MaxCapitalUSD))
	}
	return nil
}

// fearGreedDCAState is the serializable internal state.
type fearGreedDCAState struct {
	LastBuy *time.Time `json:"last_buy,omitempty"`
}

// FearGreedDCA buys fixed quote amounts during extreme fear, subject to a
// cooldown window and the capital ceiling, and exits lots that have passed
// the hold period once sentiment recovers.
type FearGreedDCA struct {
	cfg   FearGreedDCAConfig
	state fearGreedDCAState
}

// NewFearGreedDCA validates the config and constructs the strategy.
func NewFearGreedDCA(cfg FearGreedDCAConfig) (*FearGreedDCA, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CooldownDays == 0 {
		cfg.CooldownDays = cfg.HoldDays
	}
	return &FearGreedDCA{cfg: cfg}, nil
}

func (s *FearGreedDCA) Name() string { return NameFearGreedDCA }

func (s *FearGreedDCA) Description() string {
	return "DCA on extreme fear, hold minimum N days, exit on recovery"
}

// Evaluate emits BUY when fear is at or below the threshold, the cooldown
// since the last buy has elapsed, and the capital ceiling is not breached.
// Confidence scales linearly with fear depth.
func (s *FearGreedDCA) Evaluate(ctx domain.MarketContext) domain.StrategySignal {
	cfg := s.cfg
	fg := ctx.FearGreed

	if fg <= cfg.BuyThreshold {
		if s.inCooldown(ctx.Timestamp) {
			return holdSignal(ctx, fmt.Sprintf("F&G=%d but buy cooldown active (%dd since last buy required)", fg, cfg.CooldownDays))
		}
		remaining := cfg.MaxCapitalUSD.Sub(ctx.TotalInvested)
		if remaining.LessThan(cfg.DCAAmountUSD) {
			return holdSignal(ctx, fmt.Sprintf("F&G=%d extreme fear but capital ceiling reached (%s invested)", fg, ctx.TotalInvested.StringFixed(0)))
		}
		ts := ctx.Timestamp
		s.state.LastBuy = &ts
		return domain.StrategySignal{
			Action:     domain.ActionBuy,
			Confidence: fearConfidence(fg, cfg.BuyThreshold),
			Size:       cfg.DCAAmountUSD,
			Reason:     fmt.Sprintf("F&G=%d <= %d (%s)", fg, cfg.BuyThreshold, domain.FearGreedLabel(fg)),
			Timestamp:  ctx.Timestamp,
			Metadata: map[string]string{
				"fg":             fmt.Sprintf("%d", fg),
				"threshold":      fmt.Sprintf("%d", cfg.BuyThreshold),
				"total_invested": ctx.TotalInvested.String(),
			},
		}
	}

	if fg >= cfg.SellThreshold {
		qty, n := eligibleSellQty(ctx, cfg.HoldDays)
		if n > 0 {
			return domain.StrategySignal{
				Action:     domain.ActionSell,
				Confidence: 0.8,
				Size:       qty,
				Reason:     fmt.Sprintf("F&G=%d >= %d (recovery), %d lot(s) past %dd hold", fg, cfg.SellThreshold, n, cfg.HoldDays),
				Timestamp:  ctx.Timestamp,
				Metadata:   map[string]string{"eligible_lots": fmt.Sprintf("%d", n)},
			}
		}
	}

	return holdSignal(ctx, fmt.Sprintf("F&G=%d in neutral zone (buy<=%d, sell>=%d)", fg, cfg.BuyThreshold, cfg.SellThreshold))
}

func (s *FearGreedDCA) inCooldown(now time.Time) bool {
	if s.state.LastBuy == nil {
		return false
	}
	return now.Sub(*s.state.LastBuy) < time.Duration(s.cfg.CooldownDays)*24*time.Hour
}

func (s *FearGreedDCA) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.state)
}

func (s *FearGreedDCA) Restore(raw json.RawMessage) error {
	if len(raw) == 0 {
		s.state = fearGreedDCAState{}
		return nil
	}
	var st fearGreedDCAState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("restore %s state: %w", NameFearGreedDCA, err)
	}
	s.state = st
	return nil
}

// fearConfidence maps fear depth to confidence: fg=0 gives 1.0, fg=threshold
// gives 0.5, linear in between.
func fearConfidence(fg, threshold int) float64 {
	if threshold == 0 {
		return 1.0
	}
	c := float64(threshold-fg)/float64(threshold)*0.5 + 0.5
	if c > 1 {
		return 1
	}
	if c < 0.5 {
		return 0.5
	}
	return c
}

func holdSignal(ctx domain.MarketContext, reason string) domain.StrategySignal {
	return domain.StrategySignal{
		Action:     domain.ActionHold,
		Confidence: 1.0,
		Size:       decimal.Zero,
		Reason:     reason,
		Timestamp:  ctx.Timestamp,
	}
}
