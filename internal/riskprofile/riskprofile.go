// Package riskprofile provides questionnaire scoring and the mapping
// from risk level to target ETF allocation.
package riskprofile

import (
	"fmt"
	"strings"

	"github.com/advisordesk/portfolio-backend/pkg/types"
)

// allocationTable maps each risk level to its target ETF weights.
var allocationTable = map[types.RiskLevel]types.Allocation{
	types.RiskLevelLow: {
		"VTI":  0.20,
		"VXUS": 0.10,
		"BND":  0.40,
		"BNDX": 0.20,
		"VNQ":  0.10,
	},
	types.RiskLevelMedium: {
		"VTI":  0.35,
		"VXUS": 0.20,
		"BND":  0.25,
		"BNDX": 0.10,
		"VNQ":  0.10,
	},
	types.RiskLevelHigh: {
		"VTI":  0.45,
		"VXUS": 0.30,
		"BND":  0.10,
		"BNDX": 0.05,
		"VNQ":  0.10,
	},
}

// Score computes a deterministic risk score from questionnaire answers.
//
// Younger investors and longer horizons score higher; income stability
// and experience scale 1-5 with a x3 multiplier; the drawdown-reaction
// answer scales 1-5 with a x4 multiplier. The total ranges roughly from
// 12 to 70.
func Score(answers types.Answers) int {
	var ageScore int
	switch {
	case answers.Age <= 30:
		ageScore = 10
	case answers.Age <= 45:
		ageScore = 7
	case answers.Age <= 60:
		ageScore = 4
	default:
		ageScore = 1
	}

	var horizonScore int
	switch {
	case answers.HorizonYears >= 15:
		horizonScore = 10
	case answers.HorizonYears >= 10:
		horizonScore = 7
	case answers.HorizonYears >= 5:
		horizonScore = 4
	default:
		horizonScore = 1
	}

	return ageScore + horizonScore +
		answers.IncomeStability*3 +
		answers.Experience*3 +
		answers.DrawdownReaction*4
}

// LevelForScore maps a total score to a discrete risk level. The
// thresholds are deliberately conservative: a high classification
// requires a genuinely high score.
func LevelForScore(score int) types.RiskLevel {
	switch {
	case score <= 25:
		return types.RiskLevelLow
	case score <= 45:
		return types.RiskLevelMedium
	default:
		return types.RiskLevelHigh
	}
}

// Profile scores the answers and maps the result to a risk level
func Profile(answers types.Answers) types.RiskProfile {
	score := Score(answers)
	return types.RiskProfile{
		Score: score,
		Level: LevelForScore(score),
	}
}

// AllocationFor returns the target allocation for a risk level. Input
// is case-insensitive. The returned allocation is a copy, so callers
// cannot corrupt the table.
func AllocationFor(level types.RiskLevel) (types.Allocation, error) {
	normalized := types.RiskLevel(strings.ToLower(strings.TrimSpace(string(level))))

	allocation, ok := allocationTable[normalized]
	if !ok {
		return nil, fmt.Errorf("invalid risk level %q: valid values are low, medium, high", level)
	}

	if err := allocation.Validate(); err != nil {
		return nil, fmt.Errorf("allocation table for %s is misconfigured: %w", normalized, err)
	}

	return allocation.Copy(), nil
}
