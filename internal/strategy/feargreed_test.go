package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fearproto/fearproto/internal/domain"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func mctx(n int, price float64, fg int) domain.MarketContext {
	return domain.MarketContext{
		Timestamp:      day(n),
		Price:          decimal.NewFromFloat(price),
		FearGreed:      fg,
		FearGreedLabel: domain.FearGreedLabel(fg),
	}
}

func openLot(entry time.Time, size float64) domain.Position {
	return domain.Position{
		EntryTime:  entry,
		EntryPrice: decimal.NewFromInt(100),
		Size:       decimal.NewFromFloat(size),
		QuoteCost:  decimal.NewFromFloat(size * 100),
		Status:     domain.PositionOpen,
	}
}

func TestFearGreedDCA_BuyOnExtremeFear(t *testing.T) {
	s, err := NewFearGreedDCA(DefaultFearGreedDCAConfig())
	require.NoError(t, err)

	sig := s.Evaluate(mctx(0, 42000, 12))
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.Greater(t, sig.Confidence, 0.5)
	assert.True(t, sig.Size.Equal(decimal.NewFromInt(500)), "size %s", sig.Size)
	assert.Equal(t, "12", sig.Metadata["fg"])
}

func TestFearGreedDCA_HoldInNeutralZone(t *testing.T) {
	s, err := NewFearGreedDCA(DefaultFearGreedDCAConfig())
	require.NoError(t, err)

	sig := s.Evaluate(mctx(0, 42000, 65))
	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.True(t, sig.Size.IsZero())
	assert.NotEmpty(t, sig.Reason)
}

func TestFearGreedDCA_Cooldown(t *testing.T) {
	cfg := DefaultFearGreedDCAConfig()
	cfg.CooldownDays = 7
	s, err := NewFearGreedDCA(cfg)
	require.NoError(t, err)

	first := s.Evaluate(mctx(0, 42000, 10))
	require.Equal(t, domain.ActionBuy, first.Action)

	// Still in fear two days later, inside the cooldown window.
	second := s.Evaluate(mctx(2, 40000, 8))
	assert.Equal(t, domain.ActionHold, second.Action)

	// Cooldown elapsed.
	third := s.Evaluate(mctx(7, 39000, 8))
	assert.Equal(t, domain.ActionBuy, third.Action)
}

func TestFearGreedDCA_CapitalCeiling(t *testing.T) {
	cfg := DefaultFearGreedDCAConfig()
	cfg.CooldownDays = 1
	cfg.MaxCapitalUSD = decimal.NewFromInt(1000)
	s, err := NewFearGreedDCA(cfg)
	require.NoError(t, err)

	mc := mctx(0, 42000, 10)
	mc.TotalInvested = decimal.NewFromInt(600)
	// Remaining 400 < DCA amount 500: no partial buy.
	sig := s.Evaluate(mc)
	assert.Equal(t, domain.ActionHold, sig.Action)
}

func TestFearGreedDCA_SellOnRecovery(t *testing.T) {
	cfg := DefaultFearGreedDCAConfig()
	cfg.HoldDays = 30
	s, err := NewFearGreedDCA(cfg)
	require.NoError(t, err)

	mc := mctx(60, 50000, 72)
	mc.OpenLots = []domain.Position{
		openLot(day(0), 0.01),  // 60 days held, eligible
		openLot(day(50), 0.02), // 10 days held, not eligible
	}
	sig := s.Evaluate(mc)
	assert.Equal(t, domain.ActionSell, sig.Action)
	assert.True(t, sig.Size.Equal(decimal.NewFromFloat(0.01)), "size %s", sig.Size)
}

func TestFearGreedDCA_NoSellWithoutEligibleLots(t *testing.T) {
	s, err := NewFearGreedDCA(DefaultFearGreedDCAConfig())
	require.NoError(t, err)

	mc := mctx(5, 50000, 80)
	mc.OpenLots = []domain.Position{openLot(day(0), 0.01)}
	sig := s.Evaluate(mc)
	assert.Equal(t, domain.ActionHold, sig.Action)
}

func TestFearGreedDCA_SnapshotRoundTrip(t *testing.T) {
	s, err := NewFearGreedDCA(DefaultFearGreedDCAConfig())
	require.NoError(t, err)
	require.Equal(t, domain.ActionBuy, s.Evaluate(mctx(0, 42000, 10)).Action)

	snap, err := s.Snapshot()
	require.NoError(t, err)

	fresh, err := NewFearGreedDCA(DefaultFearGreedDCAConfig())
	require.NoError(t, err)
	require.NoError(t, fresh.Restore(snap))

	// The restored copy is inside the cooldown the original started.
	sig := fresh.Evaluate(mctx(1, 41000, 10))
	assert.Equal(t, domain.ActionHold, sig.Action)
}

func TestFearConfidence(t *testing.T) {
	// Depth scales linearly: fg=threshold gives 0.5, fg=0 gives 1.0.
	assert.InDelta(t, 0.5, fearConfidence(20, 20), 1e-12)
	assert.InDelta(t, 1.0, fearConfidence(0, 20), 1e-12)
	assert.InDelta(t, 0.8, fearConfidence(12, 30), 1e-12)
	assert.InDelta(t, 1.0, fearConfidence(5, 0), 1e-12)
}

func TestFearGreedDCAConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*FearGreedDCAConfig)
	}{
		{"threshold above 100", func(c *FearGreedDCAConfig) { c.BuyThreshold = 101 }},
		{"negative threshold", func(c *FearGreedDCAConfig) { c.BuyThreshold = -1 }},
		{"buy above sell", func(c *FearGreedDCAConfig) { c.BuyThreshold = 60; c.SellThreshold = 50 }},
		{"zero hold days", func(c *FearGreedDCAConfig) { c.HoldDays = 0 }},
		{"negative amount", func(c *FearGreedDCAConfig) { c.DCAAmountUSD = decimal.NewFromInt(-1) }},
		{"zero ceiling", func(c *FearGreedDCAConfig) { c.MaxCapitalUSD = decimal.Zero }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultFearGreedDCAConfig()
			tc.mutate(&cfg)
			_, err := NewFearGreedDCA(cfg)
			var cfgErr *domain.StrategyConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New("martingale", Params{})
	var cfgErr *domain.StrategyConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "martingale", cfgErr.Strategy)
}

func TestNew_KnownSet(t *testing.T) {
	for _, name := range []string{NameFearGreedDCA, NameMomentumDCA, NameGridFear} {
		s, err := New(name, Params{})
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
		assert.True(t, Known(name))
	}
	assert.False(t, Known("martingale"))
}
