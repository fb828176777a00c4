// Package dataprov fetches fear/greed sentiment and price history from the
// public HTTP providers, behind rate limiting, circuit breaking, and a
// tiered cache. Providers never fabricate a value: a date with no data
// fails with DataUnavailableError.
package dataprov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fearproto/fearproto/internal/domain"
)

const alternativeMeURL = "https://api.alternative.me/fng/"

// FearGreedPoint is one sentiment reading.
type FearGreedPoint struct {
	Date  time.Time
	Value int
	Label string
}

// FearGreed fetches the Fear & Greed index from alternative.me.
type FearGreed struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewFearGreed builds the provider. An empty baseURL uses alternative.me.
func NewFearGreed(baseURL string, timeout time.Duration) *FearGreed {
	if baseURL == "" {
		baseURL = alternativeMeURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &FearGreed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "alternative.me",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

// Current returns the latest index reading.
func (f *FearGreed) Current(ctx context.Context) (FearGreedPoint, error) {
	points, err := f.fetch(ctx, 1)
	if err != nil {
		return FearGreedPoint{}, err
	}
	if len(points) == 0 {
		return FearGreedPoint{}, &domain.DataUnavailableError{Source: "alternative.me", Detail: "empty response"}
	}
	return points[0], nil
}

// History returns daily readings keyed by UTC date between start and end
// inclusive. Missing coverage of the start date is a DataUnavailableError:
// the provider will not backfill a fabricated value.
func (f *FearGreed) History(ctx context.Context, start, end time.Time) (map[string]int, error) {
	points, err := f.fetch(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	earliest := time.Time{}
	for _, p := range points {
		if earliest.IsZero() || p.Date.Before(earliest) {
			earliest = p.Date
		}
		if !p.Date.Before(start) && !p.Date.After(end) {
			out[p.Date.Format("2006-01-02")] = p.Value
		}
	}
	if len(out) == 0 {
		return nil, &domain.DataUnavailableError{
			Source: "alternative.me",
			Date:   start,
			Detail: fmt.Sprintf("no sentiment data in range (series starts %s)", earliest.Format("2006-01-02")),
		}
	}
	return out, nil
}

func (f *FearGreed) fetch(ctx context.Context, limit int) ([]FearGreedPoint, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := f.breaker.Execute(func() (any, error) {
		url := f.baseURL
		if limit > 0 {
			url += fmt.Sprintf("?limit=%d", limit)
		} else {
			url += "?limit=0&format=json"
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch fear/greed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fear/greed provider status %d", resp.StatusCode)
		}
		var parsed fngResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode fear/greed response: %w", err)
		}
		return parsed, nil
	})
	if err != nil {
		return nil, &domain.DataUnavailableError{Source: "alternative.me", Detail: err.Error()}
	}
	parsed := res.(fngResponse)

	points := make([]FearGreedPoint, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		value, err := strconv.Atoi(d.Value)
		if err != nil {
			continue
		}
		unix, err := strconv.ParseInt(d.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		points = append(points, FearGreedPoint{
			Date:  time.Unix(unix, 0).UTC().Truncate(24 * time.Hour),
			Value: value,
			Label: d.Classification,
		})
	}
	return points, nil
}
