package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fearproto/fearproto/internal/domain"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return NewManager(path, zerolog.Nop()), path
}

func TestManager_FirstRunHasNoState(t *testing.T) {
	m, _ := testManager(t)
	st, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	m, _ := testManager(t)
	lastRun := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := &ExecutorState{
		StrategyName: "fear-greed-dca",
		Strategy:     json.RawMessage(`{"last_buy":"2024-05-20T00:00:00Z"}`),
		Lots: []domain.Position{{
			EntryTime:  lastRun.AddDate(0, 0, -10),
			EntryPrice: decimal.NewFromInt(60000),
			Size:       decimal.NewFromFloat(0.01),
			QuoteCost:  decimal.NewFromInt(600),
			Status:     domain.PositionOpen,
		}},
		Cash:        decimal.NewFromInt(9400),
		RealizedPnL: decimal.NewFromInt(50),
		FeesPaid:    decimal.NewFromFloat(1.2),
		LastRun:     lastRun,
	}
	require.NoError(t, m.Save(in))

	out, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, CurrentVersion, out.Version)
	assert.Equal(t, "fear-greed-dca", out.StrategyName)
	assert.JSONEq(t, string(in.Strategy), string(out.Strategy))
	require.Len(t, out.Lots, 1)
	assert.True(t, out.Cash.Equal(decimal.NewFromInt(9400)))
	assert.True(t, out.RealizedPnL.Equal(decimal.NewFromInt(50)))
	assert.True(t, out.LastRun.Equal(lastRun))
}

func TestManager_SaveIsAtomic(t *testing.T) {
	m, path := testManager(t)
	require.NoError(t, m.Save(&ExecutorState{StrategyName: "grid-fear"}))

	// No temp file left behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestManager_MigratesV1(t *testing.T) {
	m, path := testManager(t)
	v1 := `{
		"version": 1,
		"strategy_name": "fear-greed-dca",
		"positions": [
			{"entry_time":"2024-01-05T00:00:00Z","entry_price":"50000","size":"0.01","quote_cost":"500","status":"OPEN"},
			{"entry_time":"2024-01-01T00:00:00Z","entry_price":"40000","size":"0.01","quote_cost":"400","status":"CLOSED","exit_price":"45000"}
		],
		"cash": "9100",
		"last_run": "2024-02-01T00:00:00Z"
	}`
	require.NoError(t, os.WriteFile(path, []byte(v1), 0o644))

	st, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, CurrentVersion, st.Version)
	require.Len(t, st.Lots, 2, "positions renamed to lots")
	// Realized PnL reconstructed from the closed lot: 45000*0.01 - 400.
	assert.True(t, st.RealizedPnL.Equal(decimal.NewFromInt(50)), "got %s", st.RealizedPnL)
	assert.True(t, st.FeesPaid.IsZero())
}

func TestManager_MigratesV2(t *testing.T) {
	m, path := testManager(t)
	v2 := `{
		"version": 2,
		"strategy_name": "momentum-dca",
		"lots": [],
		"cash": "10000",
		"last_run": "2024-02-01T00:00:00Z"
	}`
	require.NoError(t, os.WriteFile(path, []byte(v2), 0o644))

	st, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, st.Version)
	assert.True(t, st.RealizedPnL.IsZero())
	assert.True(t, st.FeesPaid.IsZero())
}

func TestManager_RejectsNewerVersion(t *testing.T) {
	m, path := testManager(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o644))

	_, err := m.Load()
	var stateErr *domain.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestManager_RejectsGarbage(t *testing.T) {
	m, path := testManager(t)
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	_, err := m.Load()
	var stateErr *domain.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}
