package types

import (
	"fmt"
	"strings"
)

// RiskLevel is the severity assigned to a risk or sentiment event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// ParseRiskLevel accepts the level in any case ("high", "HIGH").
func ParseRiskLevel(raw string) (RiskLevel, error) {
	level := RiskLevel(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := riskRank[level]; !ok {
		return "", fmt.Errorf("unknown risk level %q", raw)
	}
	return level, nil
}

// Rank returns the ordinal position of the level (LOW < MEDIUM < HIGH < CRITICAL).
// Unknown levels rank below LOW so a corrupt value never wins a merge.
func (l RiskLevel) Rank() int {
	if r, ok := riskRank[l]; ok {
		return r
	}
	return -1
}

// MaxRisk merges two levels, keeping the higher one. The merge is commutative
// and idempotent, so risk events may be applied in any order.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
