package dataprov

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// DefaultCacheTTL bounds how long a cached range payload stays warm.
const DefaultCacheTTL = 24 * time.Hour

// Historical serves date-keyed sentiment and close-price series for a
// backtest range, reading through the cache so repeated runs over the same
// window hit the providers once.
type Historical struct {
	fng        *FearGreed
	prices     *Binance
	cache      Cache
	persistent bool
	log        zerolog.Logger
}

// NewHistorical wires the range provider. When persistent is false the
// cache is cleared on the first fetch of a run, matching a fresh pull.
func NewHistorical(fng *FearGreed, prices *Binance, cache Cache, persistent bool, log zerolog.Logger) *Historical {
	return &Historical{
		fng:        fng,
		prices:     prices,
		cache:      cache,
		persistent: persistent,
		log:        log.With().Str("component", "dataprov").Logger(),
	}
}

// ClearForRun drops cached payloads unless the cache was marked persistent.
// Call it once before the first range fetch of a run.
func (h *Historical) ClearForRun(ctx context.Context) error {
	if h.persistent || h.cache == nil {
		return nil
	}
	if err := h.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear run cache: %w", err)
	}
	h.log.Debug().Msg("cleared run cache")
	return nil
}

// FearGreedRange returns daily index values keyed by UTC date.
func (h *Historical) FearGreedRange(ctx context.Context, start, end time.Time) (map[string]int, error) {
	key := rangeKey("fng", "", start, end)
	if data, ok := h.cacheGet(ctx, key); ok {
		var out map[string]int
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
	}
	out, err := h.fng.History(ctx, start, end)
	if err != nil {
		return nil, err
	}
	h.cacheSet(ctx, key, out)
	return out, nil
}

// PriceRange returns daily closes keyed by UTC date.
func (h *Historical) PriceRange(ctx context.Context, start, end time.Time) (map[string]decimal.Decimal, error) {
	key := rangeKey("px", h.prices.symbol, start, end)
	if data, ok := h.cacheGet(ctx, key); ok {
		var out map[string]decimal.Decimal
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
	}
	out, err := h.prices.DailyCloses(ctx, start, end)
	if err != nil {
		return nil, err
	}
	h.cacheSet(ctx, key, out)
	return out, nil
}

// Range fetches both series for the window. Either series empty fails the
// run; dates present in only one series are dropped later when bars are
// merged.
func (h *Historical) Range(ctx context.Context, start, end time.Time) (map[string]int, map[string]decimal.Decimal, error) {
	fg, err := h.FearGreedRange(ctx, start, end)
	if err != nil {
		return nil, nil, err
	}
	prices, err := h.PriceRange(ctx, start, end)
	if err != nil {
		return nil, nil, err
	}
	h.log.Info().
		Int("sentiment_days", len(fg)).
		Int("price_days", len(prices)).
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Msg("loaded historical range")
	return fg, prices, nil
}

func (h *Historical) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	data, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	return data, ok
}

func (h *Historical) cacheSet(ctx context.Context, key string, val any) {
	if h.cache == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, data, DefaultCacheTTL); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func rangeKey(kind, symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", kind, symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// Snapshot builds the live MarketContext inputs: the latest sentiment
// reading and spot price together.
func (h *Historical) Snapshot(ctx context.Context) (FearGreedPoint, decimal.Decimal, error) {
	point, err := h.fng.Current(ctx)
	if err != nil {
		return FearGreedPoint{}, decimal.Zero, err
	}
	price, err := h.prices.Price(ctx)
	if err != nil {
		return FearGreedPoint{}, decimal.Zero, err
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return FearGreedPoint{}, decimal.Zero, &domain.DataUnavailableError{Source: "binance", Detail: "non-positive spot price"}
	}
	return point, price, nil
}
