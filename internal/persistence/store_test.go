package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fearproto/fearproto/internal/backtest"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

func sampleResult() *backtest.Result {
	sharpe := 1.25
	return &backtest.Result{
		StrategyName: "fear-greed-dca",
		Start:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		FinalEquity:  decimal.NewFromInt(11500),
		Metrics: backtest.Metrics{
			TotalReturn: 0.15,
			MaxDrawdown: 0.08,
			Sharpe:      &sharpe,
			TotalTrades: 12,
		},
	}
}

func TestSaveReturnsRowID(t *testing.T) {
	store, mock := mockStore(t)
	res := sampleResult()

	mock.ExpectQuery("INSERT INTO backtest_results").
		WithArgs(res.StrategyName, res.Start, res.End,
			res.Metrics.TotalReturn, res.Metrics.MaxDrawdown, res.Metrics.Sharpe,
			res.Metrics.TotalTrades, res.FinalEquity.String(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.Save(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNilSharpeStoredAsNull(t *testing.T) {
	store, mock := mockStore(t)
	res := sampleResult()
	res.Metrics.Sharpe = nil

	mock.ExpectQuery("INSERT INTO backtest_results").
		WithArgs(res.StrategyName, res.Start, res.End,
			res.Metrics.TotalReturn, res.Metrics.MaxDrawdown, nil,
			res.Metrics.TotalTrades, res.FinalEquity.String(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))

	_, err := store.Save(context.Background(), res)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentFiltersByStrategy(t *testing.T) {
	store, mock := mockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "strategy", "range_start", "range_end", "total_return",
		"max_drawdown", "sharpe", "total_trades", "final_equity", "created_at"}

	mock.ExpectQuery("(?s)SELECT .+ FROM backtest_results\\s+WHERE strategy =").
		WithArgs("grid-fear", 5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(3), "grid-fear", now.AddDate(0, -3, 0), now, 0.11,
				0.06, 0.9, 8, "10400", now))

	rows, err := store.Recent(context.Background(), "grid-fear", 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].ID)
	assert.Equal(t, "grid-fear", rows[0].Strategy)
	require.NotNil(t, rows[0].Sharpe)
	assert.InDelta(t, 0.9, *rows[0].Sharpe, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentDefaultsLimit(t *testing.T) {
	store, mock := mockStore(t)
	cols := []string{"id", "strategy", "range_start", "range_end", "total_return",
		"max_drawdown", "sharpe", "total_trades", "final_equity", "created_at"}

	mock.ExpectQuery("(?s)SELECT .+ FROM backtest_results\\s+ORDER BY created_at").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(cols))

	rows, err := store.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRoundTrip(t *testing.T) {
	store, mock := mockStore(t)
	res := sampleResult()
	payload, err := res.MarshalDeterministic()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM backtest_results").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	loaded, err := store.Load(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, res.StrategyName, loaded.StrategyName)
	assert.True(t, res.FinalEquity.Equal(loaded.FinalEquity))
	require.NotNil(t, loaded.Metrics.Sharpe)
	assert.InDelta(t, 1.25, *loaded.Metrics.Sharpe, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
