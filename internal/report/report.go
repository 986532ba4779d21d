// Package report renders backtest results as a plain-text financial
// report.
package report

import (
	"fmt"
	"strings"

	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/advisordesk/portfolio-backend/pkg/utils"
)

// LastMonths is how many trailing monthly returns the report shows
const LastMonths = 12

// Render formats a backtest result as a readable report: header,
// performance summary, best and worst year, and the trailing monthly
// return table.
func Render(strategyName string, result *types.BacktestResult, initialCapital float64) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)
	sep := strings.Repeat("-", 40)

	history := result.PortfolioHistory
	var periodStart, periodEnd string
	if len(history) > 1 {
		periodStart = history[1].Month.Format("2006-01-02")
		periodEnd = history[len(history)-1].Month.Format("2006-01-02")
	}

	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Strategy: %s\n", strategyName)
	fmt.Fprintf(&b, "Period: %s - %s\n", periodStart, periodEnd)
	fmt.Fprintf(&b, "Initial Capital: %s\n", formatAmount(initialCapital))
	fmt.Fprintf(&b, "%s\n\n", rule)

	fmt.Fprintf(&b, "[ Performance Summary ]\n%s\n", sep)
	fmt.Fprintf(&b, "Final Value        : %s\n", utils.FormatMoney(result.FinalValue))
	fmt.Fprintf(&b, "Total Return       : %s\n", utils.FormatPercent(result.TotalReturn))
	fmt.Fprintf(&b, "CAGR               : %s\n", utils.FormatPercent(result.CAGR))
	fmt.Fprintf(&b, "Max Drawdown       : %s\n\n", utils.FormatPercent(result.MaxDrawdown))

	fmt.Fprintf(&b, "[ Key Insight ]\n%s\n", sep)
	fmt.Fprintf(&b, "Best Year          : %d (%s)\n", result.BestYear.Year, utils.FormatPercent(result.BestYear.Return))
	fmt.Fprintf(&b, "Worst Year         : %d (%s)\n\n", result.WorstYear.Year, utils.FormatPercent(result.WorstYear.Return))

	fmt.Fprintf(&b, "[ Monthly - Last %d months ]\n%s\n", LastMonths, sep)
	monthly := result.MonthlyReturns
	if len(monthly) > LastMonths {
		monthly = monthly[len(monthly)-LastMonths:]
	}
	for _, point := range monthly {
		fmt.Fprintf(&b, "%s  %s\n", point.Month.Format("2006-01"), utils.FormatPercent(point.Return))
	}
	fmt.Fprintf(&b, "%s\n", rule)

	return b.String()
}

// formatAmount renders a capital amount with thousands separators and
// no decimal places, e.g. 100000 -> "100,000".
func formatAmount(value float64) string {
	whole := fmt.Sprintf("%.0f", value)

	negative := strings.HasPrefix(whole, "-")
	digits := strings.TrimPrefix(whole, "-")

	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	out := strings.Join(groups, ",")
	if negative {
		out = "-" + out
	}
	return out
}
