// Package trading provides the live buy-in path: investing a cash
// portfolio into a target allocation at current prices.
package trading

import (
	"fmt"
	"sort"

	"github.com/advisordesk/portfolio-backend/internal/portfolio"
	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSource supplies the latest close price for a symbol
type PriceSource interface {
	LatestPrice(symbol string) (decimal.Decimal, error)
}

// Executor buys into a target allocation using available cash
type Executor struct {
	logger *zap.Logger
	prices PriceSource
}

// NewExecutor creates a new buy-in executor
func NewExecutor(logger *zap.Logger, prices PriceSource) *Executor {
	return &Executor{logger: logger, prices: prices}
}

// ExecuteBuyIn invests the portfolio's cash according to the target
// allocation: each symbol is bought by weight at its current price, in
// sorted symbol order, with the last symbol taking the remaining cash
// so rounding drift cannot strand a residue.
func (e *Executor) ExecuteBuyIn(p *portfolio.Portfolio, allocation types.Allocation) error {
	if err := allocation.Validate(); err != nil {
		return fmt.Errorf("invalid allocation: %w", err)
	}

	startingCash := p.Cash()
	if startingCash.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("portfolio cash must be greater than zero, got %s", startingCash)
	}

	symbols := allocation.Symbols()
	sort.Strings(symbols)

	for i, symbol := range symbols {
		var budget decimal.Decimal
		if i == len(symbols)-1 {
			budget = p.Cash()
		} else {
			budget = startingCash.Mul(decimal.NewFromFloat(allocation[symbol]))
		}
		if budget.LessThanOrEqual(decimal.Zero) {
			continue
		}

		price, err := e.prices.LatestPrice(symbol)
		if err != nil {
			return fmt.Errorf("fetch price for %s: %w", symbol, err)
		}

		// Truncate units so the cost can never round above the budget.
		units := budget.Div(price).Truncate(8)
		if units.IsZero() {
			continue
		}
		if err := p.Buy(symbol, units, price); err != nil {
			return fmt.Errorf("buy %s: %w", symbol, err)
		}

		e.logger.Debug("Executed buy-in order",
			zap.String("symbol", symbol),
			zap.String("units", units.String()),
			zap.String("price", price.String()),
		)
	}

	return nil
}
