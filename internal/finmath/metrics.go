// Package finmath provides pure financial statistics over return and equity
// series. All functions are stateless and deterministic.
package finmath

import (
	"errors"
	"math"
)

// ErrUndefined is returned when a statistic has no defined value for the
// given inputs (degenerate series, zero dispersion, zero drawdown). Callers
// must branch on it rather than treat the zero value as meaningful.
var ErrUndefined = errors.New("finmath: statistic undefined for input")

// Sharpe computes the annualized Sharpe ratio of a period-return series.
// The standard deviation uses the sample (N-1) denominator. Series with
// fewer than two points, or with zero dispersion, yield ErrUndefined.
func Sharpe(returns []float64, riskFree float64, periodsPerYear int) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrUndefined
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFree
	}
	mean := mean(excess)
	sd := sampleStdev(excess, mean)
	if sd == 0 {
		return 0, ErrUndefined
	}
	return mean / sd * math.Sqrt(float64(periodsPerYear)), nil
}

// Sortino is Sharpe with downside deviation in the denominator: the sample
// standard deviation of the excess-return series with non-negative periods
// zero-filled. Fewer than two points, or no downside at all, yield
// ErrUndefined.
func Sortino(returns []float64, riskFree float64, periodsPerYear int) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrUndefined
	}
	excess := make([]float64, len(returns))
	downside := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFree
		if excess[i] < 0 {
			downside[i] = excess[i]
		}
	}
	var sumSq float64
	for _, d := range downside {
		sumSq += d * d
	}
	dd := math.Sqrt(sumSq / float64(len(downside)-1))
	if dd == 0 {
		return 0, ErrUndefined
	}
	return mean(excess) / dd * math.Sqrt(float64(periodsPerYear)), nil
}

// MaxDrawdown returns the largest peak-to-trough decline of an equity curve
// as a positive fraction (0.25 means a 25% decline). A monotonically
// non-decreasing curve has drawdown 0.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Calmar divides annualized return by max drawdown (both as fractions).
// Undefined when drawdown is zero.
func Calmar(annualizedReturn, maxDrawdown float64) (float64, error) {
	if maxDrawdown == 0 {
		return 0, ErrUndefined
	}
	return annualizedReturn / maxDrawdown, nil
}

// Kelly computes the Kelly betting fraction from win probability and the
// average win/loss magnitudes. The result is floored at 0 (never suggests
// shorting) and clamped to cap. avgWin and avgLoss are positive magnitudes;
// a zero avgLoss yields 0.
func Kelly(winRate, avgWin, avgLoss, cap float64) float64 {
	if avgLoss == 0 || cap <= 0 {
		return 0
	}
	odds := avgWin / avgLoss
	k := winRate - (1-winRate)/odds
	if k < 0 {
		return 0
	}
	if k > cap {
		return cap
	}
	return k
}

// AnnualizedReturn converts a total return fraction over a span of days to a
// compounded annual rate. Non-positive spans return 0; a total loss of the
// whole stake returns -1.
func AnnualizedReturn(totalReturn float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	factor := 1 + totalReturn
	if factor <= 0 {
		return -1
	}
	years := float64(days) / 365.0
	return math.Pow(factor, 1/years) - 1
}

// ProfitFactor is gross profit divided by gross loss over a series of trade
// returns. Undefined when there are no losing trades.
func ProfitFactor(tradeReturns []float64) (float64, error) {
	var profit, loss float64
	for _, r := range tradeReturns {
		if r > 0 {
			profit += r
		} else if r < 0 {
			loss += -r
		}
	}
	if loss == 0 {
		return 0, ErrUndefined
	}
	return profit / loss, nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdev(xs []float64, mean float64) float64 {
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
