package strategy

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// GridFearConfig parametrizes the GridFear strategy.
type GridFearConfig struct {
	// FearThreshold gates the grid: levels only fire at or below it.
	FearThreshold int
	// Levels is the number of grid levels below the reference price.
	Levels int
	// SpacingPct is the percentage spacing between levels (5 means the
	// first level sits 5% below the reference).
	SpacingPct float64
	// BaseAmountUSD is the buy amount at the first level.
	BaseAmountUSD decimal.Decimal
	// LevelMultiplier grows the buy amount per level; must be >= 1 so size
	// increases monotonically with depth.
	LevelMultiplier float64
	// MaxCapitalUSD is the capital ceiling across open lots.
	MaxCapitalUSD decimal.Decimal
	// SellThreshold ends an episode: eligible lots exit and the grid resets.
	SellThreshold int
	// HoldDays is the minimum hold period before a lot may be sold.
	HoldDays int
}

// DefaultGridFearConfig returns the stock parameters.
func DefaultGridFearConfig() GridFearConfig {
	return GridFearConfig{
		FearThreshold:   25,
		Levels:          5,
		SpacingPct:      5.0,
		BaseAmountUSD:   decimal.NewFromInt(200),
		LevelMultiplier: 1.5,
		MaxCapitalUSD:   decimal.NewFromInt(5000),
		SellThreshold:   50,
		HoldDays:        90,
	}
}

// GridFearConfigFromParams maps the flat parameter set onto the config.
func GridFearConfigFromParams(p Params) GridFearConfig {
	cfg := DefaultGridFearConfig()
	if p.FearThreshold != 0 {
		cfg.FearThreshold = p.FearThreshold
	}
	if p.GridLevels != 0 {
		cfg.Levels = p.GridLevels
	}
	if p.GridSpacingPct != 0 {
		cfg.SpacingPct = p.GridSpacingPct
	}
	if p.BaseAmountUSD != 0 {
		cfg.BaseAmountUSD = decimal.NewFromFloat(p.BaseAmountUSD)
	}
	if p.LevelMultiplier != 0 {
		cfg.LevelMultiplier = p.LevelMultiplier
	}
	if p.MaxCapitalUSD != 0 {
		cfg.MaxCapitalUSD = decimal.NewFromFloat(p.MaxCapitalUSD)
	}
	if p.SellThreshold != 0 {
		cfg.SellThreshold = p.SellThreshold
	}
	if p.HoldDays != 0 {
		cfg.HoldDays = p.HoldDays
	}
	return cfg
}

// Validate rejects out-of-domain parameters.
func (c GridFearConfig) Validate() error {
	fail := func(field, reason string) error {
		return &domain.StrategyConfigError{Strategy: NameGridFear, Field: field, Reason: reason}
	}
	if c.FearThreshold < 0 || c.FearThreshold > 100 {
		return fail("fear_threshold", fmt.Sprintf("must be in [0,100], got %d", c.FearThreshold))
	}
	if c.SellThreshold < 0 || c.SellThreshold > 100 {
		return fail("sell_threshold", fmt.Sprintf("must be in [0,100], got %d", c.SellThreshold))
	}
	if c.Levels < 1 {
		return fail("grid_levels", fmt.Sprintf("must be >= 1, got %d", c.Levels))
	}
	if c.SpacingPct <= 0 {
		return fail("grid_spacing_pct", fmt.Sprintf("must be > 0, got %g", c.SpacingPct))
	}
	if c.LevelMultiplier < 1 {
		return fail("level_multiplier", fmt.Sprintf("must be >= 1, got %g", c.LevelMultiplier))
	}
	if !c.BaseAmountUSD.IsPositive() {
		return fail("base_amount_usd", fmt.Sprintf("must be > 0, got %s", c.BaseAmountUSD))
	}
	if !c.MaxCapitalUSD.IsPositive() {
		return fail("max_capital_usd", fmt.Sprintf("must be > 0, got %s", c.MaxCapitalUSD))
	}
	if c.HoldDays < 1 {
		return fail("hold_days", fmt.Sprintf("must be >= 1, got %d", c.HoldDays))
	}
	return nil
}

// gridFearState is the serializable internal state. Fired guarantees each
// level executes at most once per episode; a new episode starts when the
// reference price resets.
type gridFearState struct {
	ReferencePrice *decimal.Decimal `json:"reference_price,omitempty"`
	Fired          []bool           `json:"fired,omitempty"`
}

// GridFear precomputes price levels at percentage offsets below a reference
// price and buys progressively larger amounts as deeper levels are crossed,
// gated on fear. Each level fires at most once per episode.
type GridFear struct {
	cfg   GridFearConfig
	state gridFearState
}

// NewGridFear validates the config and constructs the strategy.
func NewGridFear(cfg GridFearConfig) (*GridFear, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GridFear{cfg: cfg}, nil
}

func (s *GridFear) Name() string { return NameGridFear }

func (s *GridFear) Description() string {
	return "grid DCA with size increasing at deeper levels during fear"
}

// Evaluate fires all not-yet-fired levels the price has crossed, as a single
// BUY sized by the sum of the level amounts.
func (s *GridFear) Evaluate(ctx domain.MarketContext) domain.StrategySignal {
	cfg := s.cfg
	fg := ctx.FearGreed

	if fg <= cfg.FearThreshold {
		if s.state.ReferencePrice == nil {
			p := ctx.Price
			s.state.ReferencePrice = &p
			s.state.Fired = make([]bool, cfg.Levels)
		}
		crossed := s.crossedLevels(ctx.Price)
		amount := decimal.Zero
		for _, lvl := range crossed {
			amount = amount.Add(s.levelAmount(lvl))
		}
		remaining := cfg.MaxCapitalUSD.Sub(ctx.TotalInvested)
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		// Dust guard: skip orders below exchange minimums.
		if len(crossed) > 0 && amount.GreaterThan(decimal.NewFromInt(10)) {
			for _, lvl := range crossed {
				s.state.Fired[lvl] = true
			}
			confidence := 0.5 + float64(cfg.FearThreshold-fg)/50.0
			if confidence > 1 {
				confidence = 1
			}
			return domain.StrategySignal{
				Action:     domain.ActionBuy,
				Confidence: confidence,
				Size:       amount,
				Reason:     fmt.Sprintf("F&G=%d <= %d, %d grid level(s) crossed below %s", fg, cfg.FearThreshold, len(crossed), s.state.ReferencePrice.StringFixed(2)),
				Timestamp:  ctx.Timestamp,
				Metadata: map[string]string{
					"fg":              fmt.Sprintf("%d", fg),
					"levels_fired":    fmt.Sprintf("%d", len(crossed)),
					"reference_price": s.state.ReferencePrice.String(),
				},
			}
		}
	}

	if fg >= cfg.SellThreshold {
		qty, n := eligibleSellQty(ctx, cfg.HoldDays)
		if n > 0 {
			// Episode ends on exit; the next fear reading sets a new
			// reference and re-arms every level.
			s.state.ReferencePrice = nil
			s.state.Fired = nil
			return domain.StrategySignal{
				Action:     domain.ActionSell,
				Confidence: 0.8,
				Size:       qty,
				Reason:     fmt.Sprintf("F&G=%d >= %d, grid exit of %d lot(s)", fg, cfg.SellThreshold, n),
				Timestamp:  ctx.Timestamp,
				Metadata:   map[string]string{"eligible_lots": fmt.Sprintf("%d", n)},
			}
		}
	}

	return holdSignal(ctx, fmt.Sprintf("F&G=%d, no grid level crossed", fg))
}

// crossedLevels returns the indices of levels at or above the current drop
// depth that have not fired this episode. Level i sits (i+1)*SpacingPct
// below the reference.
func (s *GridFear) crossedLevels(price decimal.Decimal) []int {
	if s.state.ReferencePrice == nil || s.state.ReferencePrice.IsZero() {
		return nil
	}
	dropPct, _ := s.state.ReferencePrice.Sub(price).
		Div(*s.state.ReferencePrice).Mul(decimal.NewFromInt(100)).Float64()
	var out []int
	for i := 0; i < s.cfg.Levels; i++ {
		if s.state.Fired[i] {
			continue
		}
		levelPct := float64(i+1) * s.cfg.SpacingPct
		if dropPct >= levelPct {
			out = append(out, i)
		}
	}
	return out
}

// levelAmount grows geometrically with depth so deeper levels buy more.
func (s *GridFear) levelAmount(level int) decimal.Decimal {
	mult := math.Pow(s.cfg.LevelMultiplier, float64(level))
	return s.cfg.BaseAmountUSD.Mul(decimal.NewFromFloat(mult))
}

func (s *GridFear) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.state)
}

func (s *GridFear) Restore(raw json.RawMessage) error {
	if len(raw) == 0 {
		s.state = gridFearState{}
		return nil
	}
	var st gridFearState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("restore %s state: %w", NameGridFear, err)
	}
	// An active episode needs a fired flag per level; a nil slice here
	// would be indexed on the next fearful evaluation.
	if (st.ReferencePrice != nil || st.Fired != nil) && len(st.Fired) != s.cfg.Levels {
		return &domain.InvalidStateError{Op: "grid-fear restore", Reason: fmt.Sprintf("fired set has %d levels, config has %d", len(st.Fired), s.cfg.Levels)}
	}
	s.state = st
	return nil
}
