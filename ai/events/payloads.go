package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Handoff is published with TypeHandoff when a conversation moves between agents.
type Handoff struct {
	ContextID string    `json:"contextId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	KeyFacts  int       `json:"keyFacts"`
	Timestamp time.Time `json:"timestamp"`
}

// LeadQualified is consumed with TypeLeadQualified.
type LeadQualified struct {
	SessionID string    `json:"sessionId"`
	Score     float64   `json:"score"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// VoiceSessionEnd is consumed with TypeVoiceSessionEnd.
type VoiceSessionEnd struct {
	SessionID string  `json:"sessionId"`
	Duration  float64 `json:"duration"` // seconds
	Outcome   string  `json:"outcome"`
}

// PaymentCompleted is consumed with TypePaymentCompleted.
// CorrelationID is used when SessionID is empty.
type PaymentCompleted struct {
	SessionID     string    `json:"sessionId"`
	CorrelationID string    `json:"correlationId"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"transactionId"`
	Timestamp     time.Time `json:"timestamp"`
}

// DecodePayload decodes a JSON payload into the typed struct registered for
// eventType.
func DecodePayload(eventType string, raw json.RawMessage) (any, error) {
	var target any
	switch eventType {
	case TypeLeadQualified:
		target = &LeadQualified{}
	case TypeVoiceSessionEnd:
		target = &VoiceSessionEnd{}
	case TypePaymentCompleted:
		target = &PaymentCompleted{}
	default:
		return nil, fmt.Errorf("unsupported event type %q", eventType)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return target, nil
}
