package dataprov

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fearproto/fearproto/internal/domain"
)

func fngServer(t *testing.T, points map[string]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[`)
		first := true
		for date, value := range points {
			day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
			require.NoError(t, err)
			if !first {
				fmt.Fprint(w, ",")
			}
			first = false
			fmt.Fprintf(w, `{"value":"%d","value_classification":"Fear","timestamp":"%d"}`, value, day.Unix())
		}
		fmt.Fprint(w, `]}`)
	}))
}

func TestFearGreed_Current(t *testing.T) {
	srv := fngServer(t, map[string]int{"2024-03-01": 17})
	defer srv.Close()

	p := NewFearGreed(srv.URL, time.Second)
	point, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, point.Value)
	assert.Equal(t, "Fear", point.Label)
	assert.Equal(t, "2024-03-01", point.Date.Format("2006-01-02"))
}

func TestFearGreed_HistoryFiltersRange(t *testing.T) {
	srv := fngServer(t, map[string]int{
		"2024-02-28": 40,
		"2024-03-01": 17,
		"2024-03-02": 12,
		"2024-03-05": 30,
	})
	defer srv.Close()

	p := NewFearGreed(srv.URL, time.Second)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	hist, err := p.History(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2024-03-01": 17, "2024-03-02": 12}, hist)
}

func TestFearGreed_EmptyRangeFails(t *testing.T) {
	srv := fngServer(t, map[string]int{"2024-03-01": 17})
	defer srv.Close()

	p := NewFearGreed(srv.URL, time.Second)
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := p.History(context.Background(), start, end)
	var dataErr *domain.DataUnavailableError
	require.ErrorAs(t, err, &dataErr, "a range before the series starts must fail loudly")
	assert.Equal(t, "alternative.me", dataErr.Source)
}

func TestFearGreed_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewFearGreed(srv.URL, time.Second)
	_, err := p.Current(context.Background())
	var dataErr *domain.DataUnavailableError
	assert.ErrorAs(t, err, &dataErr)
}

func TestBinance_Price(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ticker/price":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"64250.10"}`)
		case "/ticker/bookTicker":
			fmt.Fprint(w, `{"symbol":"BTCUSDT","bidPrice":"64249.00","askPrice":"64251.00"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b := NewBinance(srv.URL, "BTCUSDT", time.Second)
	price, err := b.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "64250.1", price.String())

	quote, err := b.Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "64249", quote.Bid.String())
	assert.Equal(t, "64251", quote.Ask.String())
	assert.Equal(t, "64250", quote.Last.String())
}

func TestBinance_DailyCloses(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/klines", r.URL.Path)
		fmt.Fprintf(w, `[[%d,"64000","65000","63000","64500","100"],[%d,"64500","66000","64000","65800","120"]]`,
			day1.UnixMilli(), day2.UnixMilli())
	}))
	defer srv.Close()

	b := NewBinance(srv.URL, "BTCUSDT", time.Second)
	closes, err := b.DailyCloses(context.Background(), day1, day2)
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.Equal(t, "64500", closes["2024-03-01"].String())
	assert.Equal(t, "65800", closes["2024-03-02"].String())
}
