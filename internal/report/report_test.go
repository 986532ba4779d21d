// Package report_test provides tests for report rendering.
package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/advisordesk/portfolio-backend/internal/report"
	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// monthEnd returns the last day of the month `offset` months after
// January 2023.
func monthEnd(offset int) time.Time {
	return time.Date(2023, time.January+time.Month(offset)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func sampleResult(months int) *types.BacktestResult {
	history := make([]types.PortfolioPoint, 0, months+1)
	history = append(history, types.PortfolioPoint{
		Month: monthEnd(-1),
		Value: decimal.NewFromInt(100000),
	})
	returns := make([]types.MonthReturnPoint, 0, months)
	value := decimal.NewFromInt(100000)
	for i := 0; i < months; i++ {
		value = value.Mul(decimal.NewFromFloat(1.01))
		month := monthEnd(i)
		history = append(history, types.PortfolioPoint{Month: month, Value: value})
		returns = append(returns, types.MonthReturnPoint{Month: month, Return: 0.01})
	}

	return &types.BacktestResult{
		FinalValue:       value,
		TotalReturn:      0.1268,
		CAGR:             0.1268,
		MaxDrawdown:      -0.034,
		BestYear:         types.YearReturn{Year: 2023, Return: 0.1268},
		WorstYear:        types.YearReturn{Year: 2023, Return: 0.1268},
		PortfolioHistory: history,
		MonthlyReturns:   returns,
	}
}

func TestRenderContainsSummary(t *testing.T) {
	out := report.Render("Buy & Hold", sampleResult(12), 100000)

	for _, want := range []string{
		"Strategy: Buy & Hold",
		"Initial Capital: 100,000",
		"Total Return       : +12.68%",
		"Max Drawdown       : -3.40%",
		"Best Year          : 2023 (+12.68%)",
		"Period: 2023-01-31 - 2023-12-31",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderLimitsMonthlyTable(t *testing.T) {
	out := report.Render("Monthly (1 month)", sampleResult(24), 100000)

	rows := strings.Count(out, "  +1.00%")
	if rows != report.LastMonths {
		t.Errorf("Expected %d monthly rows, got %d", report.LastMonths, rows)
	}

	// Only the trailing window should appear.
	if strings.Contains(out, "2023-01  ") {
		t.Error("Report should not include months older than the trailing window")
	}
	if !strings.Contains(out, "2024-12") {
		t.Error("Report should include the most recent month")
	}
}

func TestRenderShortRun(t *testing.T) {
	out := report.Render("Annual (12 months)", sampleResult(3), 100000)

	rows := strings.Count(out, "  +1.00%")
	if rows != 3 {
		t.Errorf("Expected 3 monthly rows for a 3-month run, got %d", rows)
	}
}
