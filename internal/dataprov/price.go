package dataprov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fearproto/fearproto/internal/domain"
)

const binanceBaseURL = "https://api.binance.com/api/v3"

// Binance fetches spot prices and daily klines.
type Binance struct {
	baseURL string
	symbol  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewBinance builds the provider for one symbol, e.g. BTCUSDT.
func NewBinance(baseURL, symbol string, timeout time.Duration) *Binance {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	if symbol == "" {
		symbol = "BTCUSDT"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Binance{
		baseURL: baseURL,
		symbol:  symbol,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "binance",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Price returns the symbol's last trade price.
func (b *Binance) Price(ctx context.Context) (decimal.Decimal, error) {
	var parsed struct {
		Price string `json:"price"`
	}
	params := url.Values{"symbol": {b.symbol}}
	if err := b.get(ctx, "/ticker/price", params, &parsed); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(parsed.Price)
	if err != nil {
		return decimal.Zero, &domain.DataUnavailableError{Source: "binance", Detail: fmt.Sprintf("bad price %q", parsed.Price)}
	}
	return price, nil
}

// Quote returns top-of-book, satisfying exchange.Quoter for the paper
// adapter.
func (b *Binance) Quote(ctx context.Context) (domain.MarketPrice, error) {
	var parsed struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	params := url.Values{"symbol": {b.symbol}}
	if err := b.get(ctx, "/ticker/bookTicker", params, &parsed); err != nil {
		return domain.MarketPrice{}, err
	}
	bid, err := decimal.NewFromString(parsed.BidPrice)
	if err != nil {
		return domain.MarketPrice{}, &domain.DataUnavailableError{Source: "binance", Detail: "bad bid price"}
	}
	ask, err := decimal.NewFromString(parsed.AskPrice)
	if err != nil {
		return domain.MarketPrice{}, &domain.DataUnavailableError{Source: "binance", Detail: "bad ask price"}
	}
	return domain.MarketPrice{
		Symbol: b.symbol,
		Bid:    bid,
		Ask:    ask,
		Last:   bid.Add(ask).Div(decimal.NewFromInt(2)),
	}, nil
}

// DailyCloses returns close prices keyed by UTC date between start and end
// inclusive, paging through klines in 1000-candle chunks.
func (b *Binance) DailyCloses(ctx context.Context, start, end time.Time) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	chunkStart := start
	for !chunkStart.After(end) {
		chunkEnd := chunkStart.AddDate(0, 0, 999)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		var klines [][]any
		params := url.Values{
			"symbol":    {b.symbol},
			"interval":  {"1d"},
			"limit":     {"1000"},
			"startTime": {fmt.Sprintf("%d", chunkStart.UnixMilli())},
			"endTime":   {fmt.Sprintf("%d", chunkEnd.AddDate(0, 0, 1).UnixMilli())},
		}
		if err := b.get(ctx, "/klines", params, &klines); err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if len(k) < 5 {
				continue
			}
			openMs, ok := k[0].(float64)
			if !ok {
				continue
			}
			closeStr, ok := k[4].(string)
			if !ok {
				continue
			}
			price, err := decimal.NewFromString(closeStr)
			if err != nil {
				continue
			}
			date := time.UnixMilli(int64(openMs)).UTC().Format("2006-01-02")
			out[date] = price
		}
		chunkStart = chunkEnd.AddDate(0, 0, 1)
	}
	if len(out) == 0 {
		return nil, &domain.DataUnavailableError{
			Source: "binance",
			Date:   start,
			Detail: fmt.Sprintf("no %s klines in range", b.symbol),
		}
	}
	return out, nil
}

func (b *Binance) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("binance %s status %d", path, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil, nil
	})
	if err != nil {
		return &domain.DataUnavailableError{Source: "binance", Detail: err.Error()}
	}
	return nil
}
