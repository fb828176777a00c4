package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fearproto/fearproto/internal/domain"
)

func gridCfg() GridFearConfig {
	cfg := DefaultGridFearConfig()
	cfg.FearThreshold = 25
	cfg.Levels = 5
	cfg.SpacingPct = 5.0
	cfg.BaseAmountUSD = decimal.NewFromInt(200)
	cfg.LevelMultiplier = 1.5
	cfg.MaxCapitalUSD = decimal.NewFromInt(50000)
	return cfg
}

func TestGridFear_ReferenceSetOnFirstFearReading(t *testing.T) {
	s, err := NewGridFear(gridCfg())
	require.NoError(t, err)

	// First fear context sets the reference; no level is crossed yet.
	sig := s.Evaluate(mctx(0, 100, 20))
	assert.Equal(t, domain.ActionHold, sig.Action)
	require.NotNil(t, s.state.ReferencePrice)
	assert.True(t, s.state.ReferencePrice.Equal(decimal.NewFromInt(100)))
}

func TestGridFear_LevelsFireOnTheWayDown(t *testing.T) {
	s, err := NewGridFear(gridCfg())
	require.NoError(t, err)

	s.Evaluate(mctx(0, 100, 20)) // reference = 100

	// 6% below reference crosses level 0 (5%).
	sig := s.Evaluate(mctx(1, 94, 20))
	require.Equal(t, domain.ActionBuy, sig.Action)
	assert.True(t, sig.Size.Equal(decimal.NewFromInt(200)), "size %s", sig.Size)
	assert.Equal(t, "1", sig.Metadata["levels_fired"])

	// 16% below crosses levels 1 (10%) and 2 (15%) together:
	// 200*1.5 + 200*1.5^2 = 300 + 450.
	sig = s.Evaluate(mctx(2, 84, 18))
	require.Equal(t, domain.ActionBuy, sig.Action)
	assert.True(t, sig.Size.Equal(decimal.NewFromInt(750)), "size %s", sig.Size)
	assert.Equal(t, "2", sig.Metadata["levels_fired"])
}

func TestGridFear_LevelFiresAtMostOncePerEpisode(t *testing.T) {
	s, err := NewGridFear(gridCfg())
	require.NoError(t, err)

	s.Evaluate(mctx(0, 100, 20))
	require.Equal(t, domain.ActionBuy, s.Evaluate(mctx(1, 94, 20)).Action)

	// Price bounces and revisits the same depth: level 0 stays fired.
	assert.Equal(t, domain.ActionHold, s.Evaluate(mctx(2, 96, 20)).Action)
	assert.Equal(t, domain.ActionHold, s.Evaluate(mctx(3, 94, 20)).Action)
}

func TestGridFear_EpisodeResetsAfterExit(t *testing.T) {
	cfg := gridCfg()
	cfg.HoldDays = 1
	s, err := NewGridFear(cfg)
	require.NoError(t, err)

	s.Evaluate(mctx(0, 100, 20))
	require.Equal(t, domain.ActionBuy, s.Evaluate(mctx(1, 94, 20)).Action)

	// Recovery with an eligible lot ends the episode.
	mc := mctx(10, 105, 60)
	mc.OpenLots = []domain.Position{openLot(day(1), 0.02)}
	sig := s.Evaluate(mc)
	require.Equal(t, domain.ActionSell, sig.Action)
	assert.Nil(t, s.state.ReferencePrice)

	// Next fear reading starts a new episode with a fresh reference, and
	// the first level can fire again.
	s.Evaluate(mctx(20, 90, 22))
	sig = s.Evaluate(mctx(21, 84, 22))
	assert.Equal(t, domain.ActionBuy, sig.Action)
}

func TestGridFear_CapitalCeilingCapsAmount(t *testing.T) {
	cfg := gridCfg()
	cfg.MaxCapitalUSD = decimal.NewFromInt(500)
	s, err := NewGridFear(cfg)
	require.NoError(t, err)

	s.Evaluate(mctx(0, 100, 20))
	mc := mctx(1, 84, 20) // would sum 200+300+450
	mc.TotalInvested = decimal.NewFromInt(100)
	sig := s.Evaluate(mc)
	require.Equal(t, domain.ActionBuy, sig.Action)
	assert.True(t, sig.Size.Equal(decimal.NewFromInt(400)), "size %s", sig.Size)
}

func TestGridFear_DustGuard(t *testing.T) {
	cfg := gridCfg()
	cfg.MaxCapitalUSD = decimal.NewFromInt(205)
	s, err := NewGridFear(cfg)
	require.NoError(t, err)

	s.Evaluate(mctx(0, 100, 20))
	mc := mctx(1, 94, 20)
	mc.TotalInvested = decimal.NewFromInt(200)
	// Remaining capital is 5, below the order minimum.
	sig := s.Evaluate(mc)
	assert.Equal(t, domain.ActionHold, sig.Action)
}

func TestGridFear_RestoreValidatesFiredLength(t *testing.T) {
	s, err := NewGridFear(gridCfg())
	require.NoError(t, err)

	err = s.Restore([]byte(`{"reference_price":"100","fired":[true,false]}`))
	var stateErr *domain.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestGridFear_RestoreRejectsEpisodeWithoutFiredSet(t *testing.T) {
	s, err := NewGridFear(gridCfg())
	require.NoError(t, err)

	// A reference price with no fired flags would be indexed on the next
	// fearful evaluation; it must fail the restore instead.
	err = s.Restore([]byte(`{"reference_price":"100"}`))
	var stateErr *domain.InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	// The strategy stays usable after the rejected restore.
	sig := s.Evaluate(mctx(1, 90, 20))
	assert.NotEmpty(t, sig.Action)
}

func TestGridFear_SnapshotRoundTrip(t *testing.T) {
	s, err := NewGridFear(gridCfg())
	require.NoError(t, err)
	s.Evaluate(mctx(0, 100, 20))
	require.Equal(t, domain.ActionBuy, s.Evaluate(mctx(1, 94, 20)).Action)

	snap, err := s.Snapshot()
	require.NoError(t, err)

	fresh, err := NewGridFear(gridCfg())
	require.NoError(t, err)
	require.NoError(t, fresh.Restore(snap))

	// The restored copy remembers both the reference and the fired level.
	assert.Equal(t, domain.ActionHold, fresh.Evaluate(mctx(2, 94, 20)).Action)
	assert.Equal(t, domain.ActionBuy, fresh.Evaluate(mctx(3, 89, 20)).Action)
}
