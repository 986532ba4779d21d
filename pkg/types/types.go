// Package types provides shared type definitions for the portfolio backend.
package types

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel represents an investor risk profile
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// RebalanceFrequency is the number of months between rebalances.
// Zero means Buy & Hold: the portfolio is never rebalanced after the
// initial allocation.
type RebalanceFrequency int

const (
	RebalanceBuyHold    RebalanceFrequency = 0
	RebalanceMonthly    RebalanceFrequency = 1
	RebalanceSemiAnnual RebalanceFrequency = 6
	RebalanceAnnual     RebalanceFrequency = 12
)

// Label returns the display name for a rebalance frequency
func (f RebalanceFrequency) Label() string {
	switch f {
	case RebalanceBuyHold:
		return "Buy & Hold"
	case RebalanceMonthly:
		return "Monthly (1 month)"
	case RebalanceSemiAnnual:
		return "Semi-Annual (6 months)"
	case RebalanceAnnual:
		return "Annual (12 months)"
	default:
		return fmt.Sprintf("Every %d months", int(f))
	}
}

// WeightTolerance is the allowed deviation of allocation weights from 1.0
const WeightTolerance = 1e-6

// Allocation maps an asset symbol to its target portfolio weight.
// Weights are fractions and must sum to 1.0 within WeightTolerance.
type Allocation map[string]float64

// Validate checks that the allocation is non-empty, has no negative
// weights, and sums to 1.0 within tolerance.
func (a Allocation) Validate() error {
	if len(a) == 0 {
		return fmt.Errorf("allocation must not be empty")
	}
	var total float64
	for symbol, weight := range a {
		if weight < 0 {
			return fmt.Errorf("allocation weight for %s must not be negative, got %v", symbol, weight)
		}
		total += weight
	}
	if math.Abs(total-1.0) > WeightTolerance {
		return fmt.Errorf("allocation weights must sum to 1.0, got %v", total)
	}
	return nil
}

// Symbols returns the symbols in the allocation, in unspecified order
func (a Allocation) Symbols() []string {
	symbols := make([]string, 0, len(a))
	for symbol := range a {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Copy returns a shallow copy so callers cannot mutate shared tables
func (a Allocation) Copy() Allocation {
	out := make(Allocation, len(a))
	for symbol, weight := range a {
		out[symbol] = weight
	}
	return out
}

// MonthlyReturn is one calendar month's fractional return for every
// tracked symbol. Records are immutable and consumed read-only.
type MonthlyReturn struct {
	Month   time.Time                  `json:"month"`
	Returns map[string]decimal.Decimal `json:"returns"`
}

// PricePoint is a single close price observation for one symbol
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// PortfolioPoint is one entry of the portfolio value trajectory
type PortfolioPoint struct {
	Month time.Time       `json:"month"`
	Value decimal.Decimal `json:"value"`
}

// YearReturn is a 12-month bucket's return, labelled by the calendar
// year in which the bucket ends
type YearReturn struct {
	Year   int     `json:"year"`
	Return float64 `json:"return"`
}

// MonthReturnPoint is a single month's portfolio-level return
type MonthReturnPoint struct {
	Month  time.Time `json:"month"`
	Return float64   `json:"return"`
}

// BacktestResult holds the value trajectory and derived statistics of
// one backtest run. All fields are read-only after construction.
type BacktestResult struct {
	FinalValue       decimal.Decimal    `json:"finalValue"`
	TotalReturn      float64            `json:"totalReturn"`
	CAGR             float64            `json:"cagr"`
	MaxDrawdown      float64            `json:"maxDrawdown"`
	BestYear         YearReturn         `json:"bestYear"`
	WorstYear        YearReturn         `json:"worstYear"`
	PortfolioHistory []PortfolioPoint   `json:"portfolioHistory"`
	MonthlyReturns   []MonthReturnPoint `json:"monthlyReturns"`
}

// Answers holds the raw questionnaire responses used for risk scoring
type Answers struct {
	Age              int `json:"age"`
	HorizonYears     int `json:"horizonYears"`
	IncomeStability  int `json:"incomeStability"`  // 1-5
	Experience       int `json:"experience"`       // 1-5
	DrawdownReaction int `json:"drawdownReaction"` // 1-5, reaction to a 20% drop
}

// RiskProfile is the scored questionnaire outcome
type RiskProfile struct {
	Score int       `json:"score"`
	Level RiskLevel `json:"level"`
}
