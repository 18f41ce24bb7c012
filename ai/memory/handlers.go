package memory

import (
	"context"
	"fmt"

	"github.com/hrygo/dispatchcore/ai/events"
)

// Names recorded for platform events.
const (
	AgentVoiceAI       = "VoiceAI"
	SourceBillingAgent = "billing_agent"
)

// EventHandler returns a bus callback that folds platform events into the
// matching memory: lead qualification, voice session end and completed
// payments. Subscribe it to events.TypeLeadQualified,
// events.TypeVoiceSessionEnd and events.TypePaymentCompleted.
func (b *Box) EventHandler() events.Callback {
	return func(eventType string, data any) error {
		ctx := context.Background()

		switch payload := data.(type) {
		case *events.LeadQualified:
			return b.onLeadQualified(ctx, payload)
		case events.LeadQualified:
			return b.onLeadQualified(ctx, &payload)
		case *events.VoiceSessionEnd:
			return b.onVoiceSessionEnd(ctx, payload)
		case events.VoiceSessionEnd:
			return b.onVoiceSessionEnd(ctx, &payload)
		case *events.PaymentCompleted:
			return b.onPaymentCompleted(ctx, payload)
		case events.PaymentCompleted:
			return b.onPaymentCompleted(ctx, &payload)
		default:
			return fmt.Errorf("ContextBox: unexpected payload %T for %s", data, eventType)
		}
	}
}

// Subscribe registers EventHandler for every event type it understands.
func (b *Box) Subscribe(bus *events.Bus) {
	handler := b.EventHandler()
	for _, eventType := range []string{
		events.TypeLeadQualified,
		events.TypeVoiceSessionEnd,
		events.TypePaymentCompleted,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func (b *Box) onLeadQualified(ctx context.Context, e *events.LeadQualified) error {
	qualification := map[string]any{
		"score":  e.Score,
		"status": e.Status,
	}
	if !e.Timestamp.IsZero() {
		qualification["qualifiedAt"] = e.Timestamp
	} else {
		qualification["qualifiedAt"] = b.now()
	}
	_, err := b.Set(ctx, e.SessionID, Update{Pillars: &PillarsUpdate{Qualification: qualification}})
	return err
}

func (b *Box) onVoiceSessionEnd(ctx context.Context, e *events.VoiceSessionEnd) error {
	_, err := b.LogEvent(ctx, e.SessionID, AgentVoiceAI, "session_end", map[string]any{
		"duration": e.Duration,
		"outcome":  e.Outcome,
	})
	return err
}

func (b *Box) onPaymentCompleted(ctx context.Context, e *events.PaymentCompleted) error {
	sessionID := e.SessionID
	if sessionID == "" {
		sessionID = e.CorrelationID
	}
	if sessionID == "" {
		return nil
	}

	completedAt := e.Timestamp
	if completedAt.IsZero() {
		completedAt = b.now()
	}
	_, err := b.ExtractKeyFact(ctx, sessionID, "payment", map[string]any{
		"amount":        e.Amount,
		"transactionId": e.TransactionID,
		"completedAt":   completedAt,
	}, SourceBillingAgent)
	return err
}
