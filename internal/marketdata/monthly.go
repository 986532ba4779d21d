package marketdata

import (
	"fmt"
	"time"

	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// monthKey identifies a calendar month
type monthKey struct {
	year  int
	month time.Month
}

// ToMonthlyPrices resamples a daily close series to month-end prices:
// the last observed close of each calendar month, chronologically
// ordered.
func ToMonthlyPrices(daily []types.PricePoint) ([]types.PricePoint, error) {
	if len(daily) == 0 {
		return nil, fmt.Errorf("daily price series must not be empty")
	}

	byMonth := make(map[monthKey]types.PricePoint)
	order := make([]monthKey, 0)
	for _, point := range daily {
		key := monthKey{point.Date.Year(), point.Date.Month()}
		existing, seen := byMonth[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || point.Date.After(existing.Date) {
			byMonth[key] = point
		}
	}

	monthly := make([]types.PricePoint, 0, len(order))
	for _, key := range order {
		monthly = append(monthly, byMonth[key])
	}

	for i := 1; i < len(monthly); i++ {
		if !monthly[i].Date.After(monthly[i-1].Date) {
			return nil, fmt.Errorf("daily price series is not chronologically ordered around %s",
				monthly[i].Date.Format("2006-01-02"))
		}
	}

	return monthly, nil
}

// MonthlyReturnSeries converts per-symbol month-end price series into
// the engine's ordered monthly return records. Every symbol must cover
// the same months; the first month is consumed as the baseline and
// yields no record, so the output has one fewer entry than each input
// series.
func MonthlyReturnSeries(monthlyPrices map[string][]types.PricePoint) ([]types.MonthlyReturn, error) {
	if len(monthlyPrices) == 0 {
		return nil, fmt.Errorf("monthly price map must not be empty")
	}

	var months int
	var reference string
	for symbol, series := range monthlyPrices {
		if len(series) < 2 {
			return nil, fmt.Errorf("symbol %s needs at least two month-end prices, got %d",
				symbol, len(series))
		}
		if reference == "" {
			reference = symbol
			months = len(series)
		} else if len(series) != months {
			return nil, fmt.Errorf("symbol coverage mismatch: %s has %d months, %s has %d",
				symbol, len(series), reference, months)
		}
	}

	records := make([]types.MonthlyReturn, 0, months-1)
	for i := 1; i < months; i++ {
		returns := make(map[string]decimal.Decimal, len(monthlyPrices))
		var month time.Time
		for symbol, series := range monthlyPrices {
			prev := series[i-1].Close
			if prev.LessThanOrEqual(decimal.Zero) {
				return nil, fmt.Errorf("non-positive price for %s at %s",
					symbol, series[i-1].Date.Format("2006-01-02"))
			}
			returns[symbol] = series[i].Close.Sub(prev).Div(prev)
			if series[i].Date.After(month) {
				month = series[i].Date
			}
		}
		records = append(records, types.MonthlyReturn{Month: month, Returns: returns})
	}

	return records, nil
}

// MonthlyReturnsFor loads daily prices for each symbol from the store,
// resamples them to month-end and builds the engine's return records.
func MonthlyReturnsFor(store *Store, symbols []string, start, end time.Time) ([]types.MonthlyReturn, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols must not be empty")
	}

	monthly := make(map[string][]types.PricePoint, len(symbols))
	for _, symbol := range symbols {
		daily, err := store.DailyPrices(symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", symbol, err)
		}
		resampled, err := ToMonthlyPrices(daily)
		if err != nil {
			return nil, fmt.Errorf("resample %s: %w", symbol, err)
		}
		monthly[symbol] = resampled
	}

	// The synthetic and cached series share trading days, but clamp to
	// the shortest coverage so a late-listing symbol cannot skew the run.
	shortest := 0
	for _, series := range monthly {
		if shortest == 0 || len(series) < shortest {
			shortest = len(series)
		}
	}
	for symbol, series := range monthly {
		if len(series) > shortest {
			monthly[symbol] = series[len(series)-shortest:]
		}
	}

	return MonthlyReturnSeries(monthly)
}
