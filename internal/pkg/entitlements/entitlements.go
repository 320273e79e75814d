package entitlements

import "strings"

type Plan string

const (
	PlanStarter Plan = "starter"
	PlanGrowth  Plan = "growth"
	PlanPro     Plan = "pro"
)

// MonthlyCreditAllowance returns the AI credit allowance granted to a plan
// each billing period.
func MonthlyCreditAllowance(plan Plan) int64 {
	switch plan {
	case PlanPro:
		return 1500
	case PlanGrowth:
		return 600
	default:
		return 150
	}
}

// MaxActiveSequences returns how many automation sequences a plan may keep
// active at once. Zero means unlimited.
func MaxActiveSequences(plan Plan) int {
	switch plan {
	case PlanPro:
		return 0
	case PlanGrowth:
		return 10
	default:
		return 3
	}
}

// NormalizePlan maps arbitrary input to a known plan, defaulting to starter.
func NormalizePlan(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanGrowth:
		return PlanGrowth
	case PlanPro:
		return PlanPro
	default:
		return PlanStarter
	}
}
