// Package persistence stores backtest results in postgres so runs can be
// compared across time. The store is optional; runs work without a DSN.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fearproto/fearproto/internal/backtest"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
    id            SERIAL PRIMARY KEY,
    strategy      TEXT NOT NULL,
    range_start   TIMESTAMPTZ NOT NULL,
    range_end     TIMESTAMPTZ NOT NULL,
    total_return  DOUBLE PRECISION NOT NULL,
    max_drawdown  DOUBLE PRECISION NOT NULL,
    sharpe        DOUBLE PRECISION,
    total_trades  INTEGER NOT NULL,
    final_equity  TEXT NOT NULL,
    payload       JSONB NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS backtest_results_strategy_idx
    ON backtest_results (strategy, created_at DESC);
`

// ResultRow is one stored run summary.
type ResultRow struct {
	ID          int64     `db:"id"`
	Strategy    string    `db:"strategy"`
	RangeStart  time.Time `db:"range_start"`
	RangeEnd    time.Time `db:"range_end"`
	TotalReturn float64   `db:"total_return"`
	MaxDrawdown float64   `db:"max_drawdown"`
	Sharpe      *float64  `db:"sharpe"`
	TotalTrades int       `db:"total_trades"`
	FinalEquity string    `db:"final_equity"`
	CreatedAt   time.Time `db:"created_at"`
}

// Store wraps the backtest_results table.
type Store struct {
	db *sqlx.DB
}

// Open connects and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, for tests.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Save persists a completed run and returns its row id.
func (s *Store) Save(ctx context.Context, res *backtest.Result) (int64, error) {
	payload, err := res.MarshalDeterministic()
	if err != nil {
		return 0, fmt.Errorf("marshal result: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO backtest_results
		    (strategy, range_start, range_end, total_return, max_drawdown,
		     sharpe, total_trades, final_equity, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		res.StrategyName, res.Start, res.End,
		res.Metrics.TotalReturn, res.Metrics.MaxDrawdown, res.Metrics.Sharpe,
		res.Metrics.TotalTrades, res.FinalEquity.String(), payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	return id, nil
}

// Recent lists the newest run summaries for a strategy; empty strategy
// lists across all of them.
func (s *Store) Recent(ctx context.Context, strategyName string, limit int) ([]ResultRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []ResultRow
	var err error
	if strategyName == "" {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, strategy, range_start, range_end, total_return,
			       max_drawdown, sharpe, total_trades, final_equity, created_at
			FROM backtest_results
			ORDER BY created_at DESC
			LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, strategy, range_start, range_end, total_return,
			       max_drawdown, sharpe, total_trades, final_equity, created_at
			FROM backtest_results
			WHERE strategy = $1
			ORDER BY created_at DESC
			LIMIT $2`, strategyName, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return rows, nil
}

// Load returns the full stored result document.
func (s *Store) Load(ctx context.Context, id int64) (*backtest.Result, error) {
	var payload []byte
	if err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM backtest_results WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("load result %d: %w", id, err)
	}
	var res backtest.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode result %d: %w", id, err)
	}
	return &res, nil
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }
