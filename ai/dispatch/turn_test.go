package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurn_Validate(t *testing.T) {
	valid := func() Turn {
		return Turn{TenantID: "t", SessionID: "s", Utterance: "Bonjour", Language: "fr"}
	}
	tests := []struct {
		name   string
		mutate func(*Turn)
		ok     bool
	}{
		{"valid", func(*Turn) {}, true},
		{"empty language", func(t *Turn) { t.Language = "" }, true},
		{"region language", func(t *Turn) { t.Language = "fr-MA" }, true},
		{"missing tenant", func(t *Turn) { t.TenantID = " " }, false},
		{"missing session", func(t *Turn) { t.SessionID = "" }, false},
		{"blank utterance", func(t *Turn) { t.Utterance = "\n\t" }, false},
		{"invalid utf8", func(t *Turn) { t.Utterance = "\xff\xfe" }, false},
		{"too long", func(t *Turn) { t.Utterance = strings.Repeat("a", MaxUtteranceLength+1) }, false},
		{"malformed language", func(t *Turn) { t.Language = "fr; DROP" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := valid()
			tt.mutate(&turn)
			err := turn.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, ReasonNoProviders, failureReason(nil))
	assert.Equal(t, ReasonBudgetExhausted, failureReason([]Attempt{{Reason: ReasonBudgetExhausted}, {Reason: ReasonBudgetExhausted}}))
	assert.Equal(t, ReasonAllFailed, failureReason([]Attempt{{Reason: ReasonBudgetExhausted}, {Reason: ReasonPermanent}}))
}
