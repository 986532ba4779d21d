package backtest

import (
	"math"

	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// totalReturn calculates the fractional return over the whole run
func totalReturn(finalValue, initialCapital decimal.Decimal) float64 {
	ratio, _ := finalValue.Div(initialCapital).Float64()
	return ratio - 1.0
}

// cagr annualizes the total return over the simulated span:
// (final/initial)^(12/months) - 1. Spans shorter than a year annualize
// upward, longer spans downward.
//
// A non-positive value ratio has no real fractional power. That can only
// happen when compounding drives the portfolio to exactly zero, so it is
// treated as a total loss and reported as -1.0.
func cagr(finalValue, initialCapital decimal.Decimal, months int) float64 {
	if months == 0 {
		return 0
	}

	ratio, _ := finalValue.Div(initialCapital).Float64()
	if ratio <= 0 {
		return -1.0
	}

	return math.Pow(ratio, 12.0/float64(months)) - 1.0
}

// maxDrawdown finds the largest peak-to-trough decline over the whole
// trajectory. The result is never positive: zero for a monotonically
// non-decreasing trajectory, negative otherwise.
func maxDrawdown(history []types.PortfolioPoint) float64 {
	if len(history) == 0 {
		return 0
	}

	var worst float64
	peak := history[0].Value

	for _, point := range history {
		if point.Value.GreaterThan(peak) {
			peak = point.Value
		}
		if peak.IsZero() {
			continue
		}
		dd, _ := point.Value.Sub(peak).Div(peak).Float64()
		if dd < worst {
			worst = dd
		}
	}

	return worst
}

// yearReturns groups the trajectory into 12-month buckets anchored at
// the first simulated month and computes each bucket's return relative
// to the previous bucket's end value. A run shorter than 12 months
// yields a single partial bucket; a trailing partial bucket is kept.
// Each bucket is labelled with the calendar year of its last month.
func yearReturns(history []types.PortfolioPoint) []types.YearReturn {
	if len(history) < 2 {
		return nil
	}

	months := history[1:]
	var returns []types.YearReturn
	prev := history[0].Value

	for start := 0; start < len(months); start += 12 {
		end := start + 12
		if end > len(months) {
			end = len(months)
		}
		last := months[end-1]

		var ret float64
		if prev.IsPositive() {
			ratio, _ := last.Value.Div(prev).Float64()
			ret = ratio - 1.0
		}
		returns = append(returns, types.YearReturn{
			Year:   last.Month.Year(),
			Return: ret,
		})
		prev = last.Value
	}

	return returns
}

// bestWorstYear picks the buckets with the highest and lowest return
func bestWorstYear(history []types.PortfolioPoint) (best, worst types.YearReturn) {
	years := yearReturns(history)
	if len(years) == 0 {
		return types.YearReturn{}, types.YearReturn{}
	}

	best, worst = years[0], years[0]
	for _, year := range years[1:] {
		if year.Return > best.Return {
			best = year
		}
		if year.Return < worst.Return {
			worst = year
		}
	}

	return best, worst
}

// monthlyPortfolioReturns derives the per-month portfolio-level return
// series from the value trajectory
func monthlyPortfolioReturns(history []types.PortfolioPoint) []types.MonthReturnPoint {
	if len(history) < 2 {
		return nil
	}

	returns := make([]types.MonthReturnPoint, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Value
		var ret float64
		if prev.IsPositive() {
			ratio, _ := history[i].Value.Div(prev).Float64()
			ret = ratio - 1.0
		}
		returns = append(returns, types.MonthReturnPoint{
			Month:  history[i].Month,
			Return: ret,
		})
	}

	return returns
}
