// Package events provides the in-process event bus the dispatch core uses to
// publish notable transitions and to receive platform events.
package events

import (
	"log/slog"
	"runtime/debug"
)

// Event types published or consumed by the core.
const (
	// Published.
	TypeHandoff     = "context.handoff"
	TypeBudgetAlert = "budget.alert"

	// Consumed by the conversation memory.
	TypeLeadQualified    = "lead.qualified"
	TypeVoiceSessionEnd  = "voice.session_end"
	TypePaymentCompleted = "payment.completed"
)

// Callback is the unified event callback type.
// It receives an event type string and arbitrary event data.
type Callback func(eventType string, eventData any) error

// SafeCallback is a callback variant that does not propagate errors.
// Errors are logged internally instead of being returned to callers.
type SafeCallback func(eventType string, eventData any)

// NoopCallback is a callback that does nothing.
var NoopCallback Callback = func(string, any) error { return nil }

// WrapSafe converts a Callback to a SafeCallback.
// Errors and panics from the original callback are logged but not propagated.
// Returns nil if the input callback is nil.
func WrapSafe(cb Callback) SafeCallback {
	if cb == nil {
		return nil
	}
	return func(eventType string, eventData any) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("event callback panic (swallowed)",
					"event_type", eventType,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		if err := cb(eventType, eventData); err != nil {
			slog.Warn("event callback error (swallowed)",
				"event_type", eventType,
				"error", err)
		}
	}
}
