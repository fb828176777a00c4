// Package strategy implements the trade-signal state machines. Each variant
// is deterministic: identical (context, state) inputs always produce the
// same signal and successor state. Strategies never read the wall clock;
// every time comparison uses the context timestamp.
package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// Strategy evaluates one MarketContext per step and emits exactly one
// signal; HOLD is a valid, required output when nothing fires. Internal
// state is explicit and serializable so a run can be snapshotted and
// resumed without changing behavior.
type Strategy interface {
	Name() string
	Description() string

	// Evaluate consumes the context, advances internal state, and returns
	// the signal for this step.
	Evaluate(ctx domain.MarketContext) domain.StrategySignal

	// Snapshot serializes the internal state.
	Snapshot() (json.RawMessage, error)

	// Restore replaces the internal state with a prior snapshot.
	Restore(raw json.RawMessage) error
}

// Names of the closed strategy set. Dispatch is by enumeration, not open
// registration, so exhaustiveness stays checkable.
const (
	NameFearGreedDCA = "fear-greed-dca"
	NameMomentumDCA  = "momentum-dca"
	NameGridFear     = "grid-fear"
)

// Params is the flat parameter set shared by the CLI and config file. Each
// variant picks the fields it understands; zero values fall back to the
// variant's defaults.
type Params struct {
	BuyThreshold    int     `yaml:"buy_threshold" json:"buy_threshold"`
	SellThreshold   int     `yaml:"sell_threshold" json:"sell_threshold"`
	HoldDays        int     `yaml:"hold_days" json:"hold_days"`
	CooldownDays    int     `yaml:"cooldown_days" json:"cooldown_days"`
	DCAAmountUSD    float64 `yaml:"dca_amount_usd" json:"dca_amount_usd"`
	MaxCapitalUSD   float64 `yaml:"max_capital_usd" json:"max_capital_usd"`
	FearThreshold   int     `yaml:"fear_threshold" json:"fear_threshold"`
	MinRedDays      int     `yaml:"min_red_days" json:"min_red_days"`
	GridLevels      int     `yaml:"grid_levels" json:"grid_levels"`
	GridSpacingPct  float64 `yaml:"grid_spacing_pct" json:"grid_spacing_pct"`
	BaseAmountUSD   float64 `yaml:"base_amount_usd" json:"base_amount_usd"`
	LevelMultiplier float64 `yaml:"level_multiplier" json:"level_multiplier"`
}

// New builds a strategy by name. Unknown names and out-of-domain parameters
// fail with *domain.StrategyConfigError.
func New(name string, params Params) (Strategy, error) {
	switch name {
	case NameFearGreedDCA:
		return NewFearGreedDCA(FearGreedDCAConfigFromParams(params))
	case NameMomentumDCA:
		return NewMomentumDCA(MomentumDCAConfigFromParams(params))
	case NameGridFear:
		return NewGridFear(GridFearConfigFromParams(params))
	default:
		return nil, &domain.StrategyConfigError{
			Strategy: name,
			Field:    "name",
			Reason:   fmt.Sprintf("unknown strategy %q", name),
		}
	}
}

// Known reports whether name is one of the closed strategy set.
func Known(name string) bool {
	switch name {
	case NameFearGreedDCA, NameMomentumDCA, NameGridFear:
		return true
	}
	return false
}

// eligibleSellQty sums the base quantity of open lots that have passed the
// minimum hold period as of the context timestamp.
func eligibleSellQty(ctx domain.MarketContext, holdDays int) (decimal.Decimal, int) {
	minHold := time.Duration(holdDays) * 24 * time.Hour
	total := decimal.Zero
	count := 0
	for _, lot := range ctx.OpenLots {
		if lot.Status != domain.PositionOpen {
			continue
		}
		if ctx.Timestamp.Sub(lot.EntryTime) >= minHold {
			total = total.Add(lot.Size)
			count++
		}
	}
	return total, count
}
