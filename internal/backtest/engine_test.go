// Package backtest_test provides tests for the backtest engine.
package backtest_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/advisordesk/portfolio-backend/internal/backtest"
	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newEngine() *backtest.Engine {
	return backtest.NewEngine(zap.NewNop())
}

// monthEnd returns the last day of the month `offset` months after the
// given anchor month.
func monthEnd(year int, month time.Month, offset int) time.Time {
	return time.Date(year, month+time.Month(offset)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// monthlyReturns builds a return series starting January 2023, one
// record per entry of each symbol's slice.
func monthlyReturns(t *testing.T, returns map[string][]float64) []types.MonthlyReturn {
	t.Helper()

	var months int
	for _, series := range returns {
		months = len(series)
		break
	}

	records := make([]types.MonthlyReturn, months)
	for i := 0; i < months; i++ {
		rets := make(map[string]decimal.Decimal, len(returns))
		for symbol, series := range returns {
			if len(series) != months {
				t.Fatalf("Uneven return series for %s: %d vs %d", symbol, len(series), months)
			}
			rets[symbol] = decimal.NewFromFloat(series[i])
		}
		records[i] = types.MonthlyReturn{
			Month:   monthEnd(2023, time.January, i),
			Returns: rets,
		}
	}

	return records
}

func repeat(value float64, n int) []float64 {
	series := make([]float64, n)
	for i := range series {
		series[i] = value
	}
	return series
}

func TestRunHistoryLengthAndStart(t *testing.T) {
	engine := newEngine()

	returns := monthlyReturns(t, map[string][]float64{
		"VTI": {0.01, 0.02, -0.01, 0.03},
		"BND": {0.005, 0.0, 0.001, -0.002},
	})
	capital := decimal.NewFromInt(100000)

	result, err := engine.Run(returns, types.Allocation{"VTI": 0.6, "BND": 0.4}, capital, types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.PortfolioHistory) != len(returns)+1 {
		t.Errorf("History length incorrect: expected %d, got %d",
			len(returns)+1, len(result.PortfolioHistory))
	}

	if !result.PortfolioHistory[0].Value.Equal(capital) {
		t.Errorf("History should start at initial capital, got %s",
			result.PortfolioHistory[0].Value)
	}

	if len(result.MonthlyReturns) != len(returns) {
		t.Errorf("Monthly return series length incorrect: %d", len(result.MonthlyReturns))
	}
}

func TestBuyHoldZeroReturnsKeepsCapitalExactly(t *testing.T) {
	engine := newEngine()

	returns := monthlyReturns(t, map[string][]float64{
		"VTI":  repeat(0, 12),
		"VXUS": repeat(0, 12),
	})
	capital := decimal.NewFromInt(10000)

	result, err := engine.Run(returns, types.Allocation{"VTI": 0.5, "VXUS": 0.5}, capital, types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.FinalValue.Equal(capital) {
		t.Errorf("Final value should equal initial capital exactly, got %s", result.FinalValue)
	}

	if result.TotalReturn != 0 {
		t.Errorf("Total return should be zero, got %v", result.TotalReturn)
	}

	if result.MaxDrawdown != 0 {
		t.Errorf("Max drawdown should be zero for a flat trajectory, got %v", result.MaxDrawdown)
	}
}

func TestSingleAssetRebalanceIsNoOp(t *testing.T) {
	engine := newEngine()

	series := []float64{0.02, -0.01, 0.03, 0.01, -0.02, 0.04}
	capital := decimal.NewFromInt(50000)
	allocation := types.Allocation{"VTI": 1.0}

	frequencies := []types.RebalanceFrequency{
		types.RebalanceBuyHold,
		types.RebalanceMonthly,
		types.RebalanceSemiAnnual,
	}

	// Direct compounding of the asset's returns.
	expected := capital
	one := decimal.NewFromInt(1)
	for _, r := range series {
		expected = expected.Mul(one.Add(decimal.NewFromFloat(r)))
	}

	for _, freq := range frequencies {
		returns := monthlyReturns(t, map[string][]float64{"VTI": series})
		result, err := engine.Run(returns, allocation, capital, freq)
		if err != nil {
			t.Fatalf("Run failed for frequency %d: %v", freq, err)
		}
		if !result.FinalValue.Equal(expected) {
			t.Errorf("Frequency %d: expected %s, got %s", freq, expected, result.FinalValue)
		}
	}
}

func TestBuyHoldDriftOffsets(t *testing.T) {
	engine := newEngine()

	// +10% on A and -10% on B over one month keep a 50/50 portfolio flat.
	returns := monthlyReturns(t, map[string][]float64{
		"A": {0.10},
		"B": {-0.10},
	})
	capital := decimal.NewFromInt(10000)

	result, err := engine.Run(returns, types.Allocation{"A": 0.5, "B": 0.5}, capital, types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.FinalValue.Equal(capital) {
		t.Errorf("Expected final value %s, got %s", capital, result.FinalValue)
	}

	if result.TotalReturn != 0 {
		t.Errorf("Expected zero total return, got %v", result.TotalReturn)
	}
}

func TestMonthlyRebalanceResetsDrift(t *testing.T) {
	engine := newEngine()

	// After month 1 the drifted A=5500/B=4500 split is reset to
	// 5000/5000, so month 2 again nets out to 10000.
	returns := monthlyReturns(t, map[string][]float64{
		"A": {0.10, 0.10},
		"B": {-0.10, -0.10},
	})
	capital := decimal.NewFromInt(10000)

	result, err := engine.Run(returns, types.Allocation{"A": 0.5, "B": 0.5}, capital, types.RebalanceMonthly)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.FinalValue.Equal(capital) {
		t.Errorf("Expected final value %s, got %s", capital, result.FinalValue)
	}
}

func TestRebalanceChangesBuyHoldTrajectory(t *testing.T) {
	engine := newEngine()

	data := map[string][]float64{
		"A": {0.10, 0.10, 0.10, 0.10},
		"B": {-0.10, -0.10, -0.10, -0.10},
	}
	allocation := types.Allocation{"A": 0.5, "B": 0.5}
	capital := decimal.NewFromInt(10000)

	hold, err := engine.Run(monthlyReturns(t, data), allocation, capital, types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Buy & Hold run failed: %v", err)
	}

	monthly, err := engine.Run(monthlyReturns(t, data), allocation, capital, types.RebalanceMonthly)
	if err != nil {
		t.Fatalf("Monthly run failed: %v", err)
	}

	// Without rebalancing the growing A leg compounds on a larger base,
	// so the trajectories must diverge.
	if hold.FinalValue.Equal(monthly.FinalValue) {
		t.Errorf("Expected rebalancing to change the trajectory, both ended at %s", hold.FinalValue)
	}

	if !monthly.FinalValue.Equal(capital) {
		t.Errorf("Monthly rebalance should net to %s, got %s", capital, monthly.FinalValue)
	}
}

func TestCAGRDoublingOverTwelveMonths(t *testing.T) {
	engine := newEngine()

	// 2^(1/12)-1 per month doubles the portfolio over 12 months.
	monthly := math.Pow(2, 1.0/12.0) - 1
	returns := monthlyReturns(t, map[string][]float64{"VTI": repeat(monthly, 12)})

	result, err := engine.Run(returns, types.Allocation{"VTI": 1.0}, decimal.NewFromInt(10000), types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if math.Abs(result.CAGR-1.0) > 1e-6 {
		t.Errorf("CAGR should be ~1.0 for a 12-month doubling, got %v", result.CAGR)
	}
}

func TestMaxDrawdownNeverPositive(t *testing.T) {
	engine := newEngine()

	cases := map[string][]float64{
		"rising":   {0.01, 0.02, 0.03, 0.01},
		"falling":  {-0.05, -0.02, -0.01, -0.04},
		"whipsaw":  {0.10, -0.20, 0.15, -0.05},
		"flatline": {0, 0, 0, 0},
	}

	for name, series := range cases {
		returns := monthlyReturns(t, map[string][]float64{"VTI": series})
		result, err := engine.Run(returns, types.Allocation{"VTI": 1.0}, decimal.NewFromInt(10000), types.RebalanceBuyHold)
		if err != nil {
			t.Fatalf("%s: Run failed: %v", name, err)
		}
		if result.MaxDrawdown > 0 {
			t.Errorf("%s: max drawdown must not be positive, got %v", name, result.MaxDrawdown)
		}
	}
}

func TestMaxDrawdownZeroForMonotonicRise(t *testing.T) {
	engine := newEngine()

	returns := monthlyReturns(t, map[string][]float64{"VTI": repeat(0.01, 24)})
	result, err := engine.Run(returns, types.Allocation{"VTI": 1.0}, decimal.NewFromInt(10000), types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.MaxDrawdown != 0 {
		t.Errorf("Max drawdown should be zero for a monotonic rise, got %v", result.MaxDrawdown)
	}
}

func TestMaxDrawdownKnownDecline(t *testing.T) {
	engine := newEngine()

	// Peak after month 1 at 11000, trough after month 3 at
	// 11000*0.9*0.9 = 8910: drawdown (8910-11000)/11000 = -0.19.
	returns := monthlyReturns(t, map[string][]float64{"VTI": {0.10, -0.10, -0.10, 0.05}})
	result, err := engine.Run(returns, types.Allocation{"VTI": 1.0}, decimal.NewFromInt(10000), types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if math.Abs(result.MaxDrawdown-(-0.19)) > 1e-9 {
		t.Errorf("Expected max drawdown -0.19, got %v", result.MaxDrawdown)
	}
}

func TestBestWorstYearPartialRun(t *testing.T) {
	engine := newEngine()

	returns := monthlyReturns(t, map[string][]float64{"VTI": repeat(0.01, 6)})
	result, err := engine.Run(returns, types.Allocation{"VTI": 1.0}, decimal.NewFromInt(10000), types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// A 6-month run has exactly one partial bucket, so best == worst.
	if result.BestYear != result.WorstYear {
		t.Errorf("Partial run should have one year bucket: best %+v, worst %+v",
			result.BestYear, result.WorstYear)
	}

	if result.BestYear.Year != 2023 {
		t.Errorf("Expected year 2023, got %d", result.BestYear.Year)
	}

	expected := math.Pow(1.01, 6) - 1
	if math.Abs(result.BestYear.Return-expected) > 1e-9 {
		t.Errorf("Expected partial-year return %v, got %v", expected, result.BestYear.Return)
	}
}

func TestBestWorstYearMultiYear(t *testing.T) {
	engine := newEngine()

	// Year one gains every month, year two loses every month.
	series := append(repeat(0.02, 12), repeat(-0.01, 12)...)
	returns := monthlyReturns(t, map[string][]float64{"VTI": series})

	result, err := engine.Run(returns, types.Allocation{"VTI": 1.0}, decimal.NewFromInt(10000), types.RebalanceAnnual)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.BestYear.Year != 2023 {
		t.Errorf("Best year should be 2023, got %d", result.BestYear.Year)
	}
	if result.WorstYear.Year != 2024 {
		t.Errorf("Worst year should be 2024, got %d", result.WorstYear.Year)
	}
	if result.BestYear.Return <= result.WorstYear.Return {
		t.Errorf("Best year return %v should exceed worst year return %v",
			result.BestYear.Return, result.WorstYear.Return)
	}
}

func TestTotalLossReportsCAGRMinusOne(t *testing.T) {
	engine := newEngine()

	returns := monthlyReturns(t, map[string][]float64{"VTI": {0.05, -1.0, 0.0}})
	result, err := engine.Run(returns, types.Allocation{"VTI": 1.0}, decimal.NewFromInt(10000), types.RebalanceBuyHold)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.FinalValue.IsZero() {
		t.Errorf("Expected zero final value, got %s", result.FinalValue)
	}

	if result.CAGR != -1.0 {
		t.Errorf("Total loss should report CAGR of -1.0, got %v", result.CAGR)
	}

	if result.MaxDrawdown != -1.0 {
		t.Errorf("Total loss should report max drawdown of -1.0, got %v", result.MaxDrawdown)
	}
}

func TestRunInvalidInputs(t *testing.T) {
	engine := newEngine()

	valid := monthlyReturns(t, map[string][]float64{
		"VTI":  repeat(0.01, 3),
		"VXUS": repeat(0.01, 3),
	})
	allocation := types.Allocation{"VTI": 0.5, "VXUS": 0.5}
	capital := decimal.NewFromInt(10000)

	cases := []struct {
		name       string
		returns    []types.MonthlyReturn
		allocation types.Allocation
		capital    decimal.Decimal
		frequency  types.RebalanceFrequency
	}{
		{"empty returns", nil, allocation, capital, types.RebalanceBuyHold},
		{"weights sum below one", valid, types.Allocation{"VTI": 0.5, "VXUS": 0.3}, capital, types.RebalanceBuyHold},
		{"negative weight", valid, types.Allocation{"VTI": 1.5, "VXUS": -0.5}, capital, types.RebalanceBuyHold},
		{"empty allocation", valid, types.Allocation{}, capital, types.RebalanceBuyHold},
		{"zero capital", valid, allocation, decimal.Zero, types.RebalanceBuyHold},
		{"negative capital", valid, allocation, decimal.NewFromInt(-100), types.RebalanceBuyHold},
		{"negative frequency", valid, allocation, capital, types.RebalanceFrequency(-1)},
		{"missing symbol", valid, types.Allocation{"VTI": 0.5, "BND": 0.5}, capital, types.RebalanceBuyHold},
	}

	for _, tc := range cases {
		_, err := engine.Run(tc.returns, tc.allocation, tc.capital, tc.frequency)
		if err == nil {
			t.Errorf("%s: expected error, got none", tc.name)
			continue
		}
		if !errors.Is(err, backtest.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestRunDoesNotMutateInputs(t *testing.T) {
	engine := newEngine()

	returns := monthlyReturns(t, map[string][]float64{"VTI": {0.10, -0.05}})
	original := returns[0].Returns["VTI"]
	allocation := types.Allocation{"VTI": 1.0}

	if _, err := engine.Run(returns, allocation, decimal.NewFromInt(10000), types.RebalanceMonthly); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !returns[0].Returns["VTI"].Equal(original) {
		t.Error("Engine mutated its input return records")
	}
	if allocation["VTI"] != 1.0 {
		t.Error("Engine mutated its input allocation")
	}
}

func TestGenericCadenceRebalance(t *testing.T) {
	engine := newEngine()

	// Frequency 3 over 6 months of offsetting drift: rebalances after
	// months 3 and 6 reset the split, but drift still accumulates in
	// between so the result differs from monthly rebalancing.
	data := map[string][]float64{
		"A": repeat(0.10, 6),
		"B": repeat(-0.10, 6),
	}
	allocation := types.Allocation{"A": 0.5, "B": 0.5}
	capital := decimal.NewFromInt(10000)

	quarterly, err := engine.Run(monthlyReturns(t, data), allocation, capital, types.RebalanceFrequency(3))
	if err != nil {
		t.Fatalf("Quarterly run failed: %v", err)
	}

	monthly, err := engine.Run(monthlyReturns(t, data), allocation, capital, types.RebalanceMonthly)
	if err != nil {
		t.Fatalf("Monthly run failed: %v", err)
	}

	if quarterly.FinalValue.Equal(monthly.FinalValue) {
		t.Errorf("Expected quarterly and monthly cadences to differ, both ended at %s",
			quarterly.FinalValue)
	}
}
