package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BarsFromSeries merges date-keyed sentiment and close-price series into a
// chronological bar sequence. Only dates present in both series become
// bars; a day missing either input is dropped rather than interpolated.
func BarsFromSeries(fearGreed map[string]int, prices map[string]decimal.Decimal) []Bar {
	dates := make([]string, 0, len(fearGreed))
	for date := range fearGreed {
		if _, ok := prices[date]; ok {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	bars := make([]Bar, 0, len(dates))
	for _, date := range dates {
		day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{
			Date:      day,
			Price:     prices[date],
			FearGreed: fearGreed[date],
		})
	}
	return bars
}
