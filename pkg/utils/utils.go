// Package utils provides utility functions for the portfolio backend.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// GenerateID generates a unique ID with optional prefix.
func GenerateID(prefix string) string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	id := hex.EncodeToString(bytes)
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, id)
	}
	return id
}

// NormalizeSymbol normalizes a ticker symbol for lookups.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParseCapital parses a human-friendly capital amount such as "100,000"
// or " 25000.50 " into a positive float. Thousands separators are
// stripped before conversion.
func ParseCapital(raw string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if normalized == "" {
		return 0, fmt.Errorf("initial capital must not be empty")
	}

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("initial capital must be a valid number: %w", err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("initial capital must be greater than zero, got %v", value)
	}

	return value, nil
}

// FormatPercent formats a fractional value as a signed percentage with
// two decimal places, e.g. 0.1534 -> "+15.34%".
func FormatPercent(value float64) string {
	pct := value * 100
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatMoney formats a decimal amount with two decimal places.
func FormatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

// PctChange calculates fractional period-over-period changes from a
// price series. The result has one fewer entry than the input.
func PctChange(prices []decimal.Decimal) []decimal.Decimal {
	if len(prices) < 2 {
		return nil
	}

	changes := make([]decimal.Decimal, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1].IsZero() {
			changes[i-1] = decimal.Zero
		} else {
			changes[i-1] = prices[i].Sub(prices[i-1]).Div(prices[i-1])
		}
	}

	return changes
}
