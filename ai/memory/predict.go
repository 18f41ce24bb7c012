package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Agents a conversation may be handed to next.
const (
	AgentBilling = "BillingAgent"
	AgentBooking = "BookingAgent"
	AgentSupport = "SupportAgent"
	AgentVoice   = "VoiceAgent"
)

// Suggested actions.
const (
	ActionExtractBudget   = "extract_budget"
	ActionExtractTimeline = "extract_timeline"
	ActionOfferBooking    = "offer_booking"
)

// EventBookingOffered marks that a booking was already proposed.
const EventBookingOffered = "booking_offered"

// Prediction is the read-only guidance derived from a memory.
type Prediction struct {
	LikelyNextAgent  string   `json:"likelyNextAgent"`
	SuggestedActions []string `json:"suggestedActions"`
}

// PredictedContext is returned by GetWithPrediction.
type PredictedContext struct {
	Primary    *ConversationMemory `json:"primary"`
	Related    []RelatedContext    `json:"related"`
	Prediction Prediction          `json:"prediction"`
}

// RelatedContext pairs a related id with its memory.
type RelatedContext struct {
	ID      string              `json:"id"`
	Context *ConversationMemory `json:"context"`
}

// PredictNextAgent picks the handler most likely to take over: a score of 70
// or more goes to billing, 40 or more to booking, a support intent to
// support, anything else stays with the voice agent.
func PredictNextAgent(mem *ConversationMemory) string {
	if mem == nil {
		return AgentVoice
	}
	if score, ok := toNumber(mem.Pillars.Qualification["score"]); ok {
		if score >= 70 {
			return AgentBilling
		}
		if score >= 40 {
			return AgentBooking
		}
	}
	if intentType, _ := mem.Pillars.Intent["type"].(string); intentType == "support" {
		return AgentSupport
	}
	return AgentVoice
}

// SuggestActions lists the next qualification steps: extract a missing
// budget or timeline, and offer a booking once the score reaches 50 unless
// one was already offered.
func SuggestActions(mem *ConversationMemory) []string {
	actions := []string{}
	if mem == nil {
		return append(actions, ActionExtractBudget, ActionExtractTimeline)
	}

	qual := mem.Pillars.Qualification
	if !truthy(qual["budget"]) {
		actions = append(actions, ActionExtractBudget)
	}
	if !truthy(qual["timeline"]) {
		actions = append(actions, ActionExtractTimeline)
	}
	if score, ok := toNumber(qual["score"]); ok && score >= 50 && !hasEvent(mem, EventBookingOffered) {
		actions = append(actions, ActionOfferBooking)
	}
	return actions
}

// GetWithPrediction returns the memory for id, the memories of relatedIDs and
// the prediction derived from the primary memory.
func (b *Box) GetWithPrediction(ctx context.Context, id string, relatedIDs []string) (*PredictedContext, error) {
	primary, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	related := make([]RelatedContext, 0, len(relatedIDs))
	for _, rid := range relatedIDs {
		mem, err := b.Get(ctx, rid)
		if err != nil {
			b.logger.Warn("ContextBox: skipping related memory",
				"id", rid,
				"error", err)
			continue
		}
		related = append(related, RelatedContext{ID: rid, Context: mem})
	}

	return &PredictedContext{
		Primary: primary,
		Related: related,
		Prediction: Prediction{
			LikelyNextAgent:  PredictNextAgent(primary),
			SuggestedActions: SuggestActions(primary),
		},
	}, nil
}

func hasEvent(mem *ConversationMemory, event string) bool {
	for _, e := range mem.Pillars.History {
		if e.Event == event {
			return true
		}
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if n, ok := toNumber(v); ok {
			return n != 0
		}
		return true
	}
}
