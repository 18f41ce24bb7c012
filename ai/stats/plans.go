// Package stats tracks per-tenant monthly token consumption, gates further
// spend against the tenant's plan and raises budget alerts.
package stats

import (
	"sort"
	"strings"
)

// DefaultPlan is used for unknown plan names.
const DefaultPlan = "starter"

// PlanBudget is the monthly allowance of one subscription plan.
type PlanBudget struct {
	Name          string  `json:"name"`
	MonthlyTokens int64   `json:"monthlyTokens"`
	AlertAt       float64 `json:"alertAt"` // ratio of MonthlyTokens, 0-1
	Label         string  `json:"label"`
}

var planBudgets = map[string]PlanBudget{
	"starter":   {Name: "starter", MonthlyTokens: 500_000, AlertAt: 0.8, Label: "Starter (49€)"},
	"pro":       {Name: "pro", MonthlyTokens: 2_000_000, AlertAt: 0.8, Label: "Pro (99€)"},
	"ecommerce": {Name: "ecommerce", MonthlyTokens: 2_000_000, AlertAt: 0.8, Label: "E-commerce (99€)"},
	"expert":    {Name: "expert", MonthlyTokens: 5_000_000, AlertAt: 0.8, Label: "Expert Clone (149€)"},
	"telephony": {Name: "telephony", MonthlyTokens: 10_000_000, AlertAt: 0.8, Label: "Telephony (199€)"},
}

// ResolvePlan returns the budget for name. Unknown names resolve to the
// starter plan.
func ResolvePlan(name string) PlanBudget {
	if plan, ok := planBudgets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return plan
	}
	return planBudgets[DefaultPlan]
}

// Plans lists every plan, smallest allowance first.
func Plans() []PlanBudget {
	plans := make([]PlanBudget, 0, len(planBudgets))
	for _, p := range planBudgets {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].MonthlyTokens != plans[j].MonthlyTokens {
			return plans[i].MonthlyTokens < plans[j].MonthlyTokens
		}
		return plans[i].Name < plans[j].Name
	})
	return plans
}
