package dispatch

import (
	"time"

	"github.com/hrygo/dispatchcore/ai/routing"
)

// Per-provider and per-turn failure reasons.
const (
	ReasonInvalidInput       = "invalid_input"
	ReasonNoProviders        = "no_providers"
	ReasonBudgetExhausted    = "budget_exhausted"
	ReasonNotConfigured      = "not_configured"
	ReasonTransientExhausted = "transient_exhausted"
	ReasonPermanent          = "permanent_error"
	ReasonQualityRejected    = "quality_rejected"
	ReasonForced             = "forced_failure"
	ReasonCancelled          = "cancelled"
	ReasonAllFailed          = "all_providers_failed"
)

// Attempt records what happened with one provider during a turn.
type Attempt struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
	Calls    int    `json:"calls,omitempty"`
	Score    *int   `json:"score,omitempty"`
}

// Result is the structured outcome of a turn. It is returned for every
// turn; inner errors never escape as Go errors.
type Result struct {
	Success      bool             `json:"success"`
	TurnID       string           `json:"turnId"`
	Text         string           `json:"text,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	TaskType     routing.TaskType `json:"taskType,omitempty"`
	InputTokens  int64            `json:"inputTokens,omitempty"`
	OutputTokens int64            `json:"outputTokens,omitempty"`
	QualityScore int              `json:"qualityScore,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Error        string           `json:"error,omitempty"`
	Attempts     []Attempt        `json:"attempts,omitempty"`
	Duration     time.Duration    `json:"-"`
}

// failureReason summarises the attempts of a failed turn. A turn whose
// every attempt was skipped for budget reports budget exhaustion so callers
// can tell it apart from provider failures.
func failureReason(attempts []Attempt) string {
	if len(attempts) == 0 {
		return ReasonNoProviders
	}
	for _, a := range attempts {
		if a.Reason != ReasonBudgetExhausted {
			return ReasonAllFailed
		}
	}
	return ReasonBudgetExhausted
}
