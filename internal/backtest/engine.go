// Package backtest provides the core portfolio backtesting engine.
package backtest

import (
	"errors"
	"fmt"

	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidInput indicates malformed or inconsistent backtest arguments.
var ErrInvalidInput = errors.New("invalid backtest input")

// Engine simulates the evolution of a portfolio over a monthly return
// series. It is purely functional over its inputs: no I/O, no shared
// state, safe for concurrent use on disjoint inputs.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a new backtest engine
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Run reconstructs the portfolio value trajectory for the given monthly
// returns, target allocation, initial capital and rebalance frequency,
// and derives summary statistics.
//
// The returned history has len(monthlyReturns)+1 entries: index 0 is the
// initial capital, one entry per simulated month follows. A frequency of
// zero means Buy & Hold; any positive frequency rebalances back to the
// target allocation whenever the month index is a multiple of it.
func (e *Engine) Run(
	monthlyReturns []types.MonthlyReturn,
	allocation types.Allocation,
	initialCapital decimal.Decimal,
	frequency types.RebalanceFrequency,
) (*types.BacktestResult, error) {
	if err := validateInput(monthlyReturns, allocation, initialCapital, frequency); err != nil {
		return nil, err
	}

	// Split initial capital across symbols proportional to allocation.
	assetValues := make(map[string]decimal.Decimal, len(allocation))
	for symbol, weight := range allocation {
		assetValues[symbol] = initialCapital.Mul(decimal.NewFromFloat(weight))
	}

	history := make([]types.PortfolioPoint, 0, len(monthlyReturns)+1)
	history = append(history, types.PortfolioPoint{
		Month: monthlyReturns[0].Month.AddDate(0, -1, 0),
		Value: initialCapital,
	})

	one := decimal.NewFromInt(1)
	for i, record := range monthlyReturns {
		for symbol := range assetValues {
			ret := record.Returns[symbol]
			assetValues[symbol] = assetValues[symbol].Mul(one.Add(ret))
		}

		total := totalValue(assetValues)
		history = append(history, types.PortfolioPoint{
			Month: record.Month,
			Value: total,
		})

		// Month indices are 1-based for the cadence check: an annual
		// schedule rebalances after months 12, 24, ...
		if frequency > 0 && (i+1)%int(frequency) == 0 {
			rebalance(assetValues, allocation, total)
		}
	}

	finalValue := history[len(history)-1].Value
	result := &types.BacktestResult{
		FinalValue:       finalValue,
		TotalReturn:      totalReturn(finalValue, initialCapital),
		CAGR:             cagr(finalValue, initialCapital, len(monthlyReturns)),
		MaxDrawdown:      maxDrawdown(history),
		PortfolioHistory: history,
		MonthlyReturns:   monthlyPortfolioReturns(history),
	}
	result.BestYear, result.WorstYear = bestWorstYear(history)

	e.logger.Debug("Backtest completed",
		zap.Int("months", len(monthlyReturns)),
		zap.Int("frequency", int(frequency)),
		zap.String("finalValue", finalValue.String()),
		zap.Float64("cagr", result.CAGR),
	)

	return result, nil
}

// validateInput checks all engine preconditions. Every violation is
// reported as ErrInvalidInput with context.
func validateInput(
	monthlyReturns []types.MonthlyReturn,
	allocation types.Allocation,
	initialCapital decimal.Decimal,
	frequency types.RebalanceFrequency,
) error {
	if len(monthlyReturns) == 0 {
		return fmt.Errorf("%w: monthly returns must not be empty", ErrInvalidInput)
	}

	if err := allocation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if initialCapital.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: initial capital must be greater than zero, got %s",
			ErrInvalidInput, initialCapital)
	}

	if frequency < 0 {
		return fmt.Errorf("%w: rebalance frequency must not be negative, got %d",
			ErrInvalidInput, int(frequency))
	}

	for i, record := range monthlyReturns {
		for symbol := range allocation {
			if _, ok := record.Returns[symbol]; !ok {
				return fmt.Errorf("%w: record %d (%s) is missing a return for %s",
					ErrInvalidInput, i, record.Month.Format("2006-01"), symbol)
			}
		}
	}

	return nil
}

// rebalance redistributes the total value across symbols according to
// the target allocation, preserving total portfolio value.
func rebalance(assetValues map[string]decimal.Decimal, allocation types.Allocation, total decimal.Decimal) {
	for symbol, weight := range allocation {
		assetValues[symbol] = total.Mul(decimal.NewFromFloat(weight))
	}
}

func totalValue(assetValues map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, value := range assetValues {
		total = total.Add(value)
	}
	return total
}
