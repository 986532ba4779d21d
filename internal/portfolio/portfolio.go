// Package portfolio provides the in-memory cash and holdings model.
package portfolio

import (
	"fmt"
	"sync"

	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// Portfolio tracks available cash and the number of units held per
// asset symbol. All mutating operations validate their inputs and
// never leave cash or a holding negative.
type Portfolio struct {
	mu       sync.RWMutex
	cash     decimal.Decimal
	holdings map[string]decimal.Decimal
}

// New creates an empty portfolio with the given initial cash
func New(initialCash decimal.Decimal) (*Portfolio, error) {
	if initialCash.IsNegative() {
		return nil, fmt.Errorf("initial cash must not be negative, got %s", initialCash)
	}

	return &Portfolio{
		cash:     initialCash,
		holdings: make(map[string]decimal.Decimal),
	}, nil
}

// Cash returns the available cash balance
func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Holding returns the units held for a symbol, zero if none
func (p *Portfolio) Holding(symbol string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.holdings[symbol]
}

// Holdings returns a copy of all non-zero holdings
func (p *Portfolio) Holdings() map[string]decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(p.holdings))
	for symbol, units := range p.holdings {
		out[symbol] = units
	}
	return out
}

// Buy purchases units of an asset using available cash
func (p *Portfolio) Buy(symbol string, units, price decimal.Decimal) error {
	if units.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("buy units must be greater than zero, got %s", units)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("price must be greater than zero, got %s", price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := units.Mul(price)
	if cost.GreaterThan(p.cash) {
		return fmt.Errorf("insufficient cash to buy %s %s at %s: required %s, available %s",
			units, symbol, price, cost, p.cash)
	}

	p.cash = p.cash.Sub(cost)
	p.holdings[symbol] = p.holdings[symbol].Add(units)
	return nil
}

// Sell sells units of an asset and credits the proceeds to cash
func (p *Portfolio) Sell(symbol string, units, price decimal.Decimal) error {
	if units.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("sell units must be greater than zero, got %s", units)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("price must be greater than zero, got %s", price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.holdings[symbol]
	if units.GreaterThan(current) {
		return fmt.Errorf("insufficient holdings to sell %s of %s: current %s",
			units, symbol, current)
	}

	remaining := current.Sub(units)
	if remaining.IsZero() {
		delete(p.holdings, symbol)
	} else {
		p.holdings[symbol] = remaining
	}

	p.cash = p.cash.Add(units.Mul(price))
	return nil
}

// Value calculates the total portfolio value at the given prices,
// including cash. Every held symbol must have a price.
func (p *Portfolio) Value(prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value := p.cash
	for symbol, units := range p.holdings {
		price, ok := prices[symbol]
		if !ok {
			return decimal.Zero, fmt.Errorf("missing price for asset %s", symbol)
		}
		value = value.Add(units.Mul(price))
	}
	return value, nil
}

// CurrentAllocation computes the present weight of every asset,
// including a CASH entry when cash is positive. Weights sum to 1
// unless the portfolio is worthless, in which case the result is empty.
func (p *Portfolio) CurrentAllocation(prices map[string]decimal.Decimal) (types.Allocation, error) {
	total, err := p.Value(prices)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		return types.Allocation{}, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	allocation := make(types.Allocation, len(p.holdings)+1)
	if p.cash.IsPositive() {
		weight, _ := p.cash.Div(total).Float64()
		allocation["CASH"] = weight
	}
	for symbol, units := range p.holdings {
		weight, _ := units.Mul(prices[symbol]).Div(total).Float64()
		allocation[symbol] = weight
	}

	return allocation, nil
}
