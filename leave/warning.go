package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// WARNING RULES
// =============================================================================

// WarningRule fires when a user's approved history of TargetType reaches
// Threshold. The count is an incidence measure: whole-day requests add their
// inclusive day count, partial-day requests add 0.5 regardless of hours.
type WarningRule struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	TargetType Category        `json:"targetType"`
	Threshold  decimal.Decimal `json:"threshold"`
	Message    string          `json:"message"`
	Color      string          `json:"color"`
}

// ActiveWarning is a fired rule. It is derived on demand and never stored.
type ActiveWarning struct {
	RuleID       string          `json:"ruleId"`
	RuleName     string          `json:"ruleName"`
	Message      string          `json:"message"`
	Color        string          `json:"color"`
	CurrentValue decimal.Decimal `json:"currentValue"`
}

// EvaluateWarnings evaluates every rule independently against userID's
// approved requests and returns the ones that fire, in rule order.
func EvaluateWarnings(userID generic.UserID, rules []WarningRule, requests []Request) []ActiveWarning {
	var approved []Request
	for _, r := range requests {
		if r.UserID == userID && r.Status == StatusApproved {
			approved = append(approved, r)
		}
	}

	var warnings []ActiveWarning
	for _, rule := range rules {
		count := decimal.Zero
		for _, r := range approved {
			if r.Category != rule.TargetType {
				continue
			}
			if r.Span.PartialDay {
				count = count.Add(halfDay)
			} else {
				count = count.Add(decimal.NewFromInt(int64(r.Span.InclusiveDays())))
			}
		}
		if count.GreaterThanOrEqual(rule.Threshold) {
			warnings = append(warnings, ActiveWarning{
				RuleID:       rule.ID,
				RuleName:     rule.Name,
				Message:      rule.Message,
				Color:        rule.Color,
				CurrentValue: count,
			})
		}
	}
	return warnings
}
