package dispatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hrygo/dispatchcore/ai/routing"
)

// MaxUtteranceLength bounds an inbound utterance, in runes.
const MaxUtteranceLength = 4000

// ErrInvalidInput marks a turn rejected before dispatch.
var ErrInvalidInput = errors.New("invalid input")

var languagePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})?$`)

// Turn is one inbound end-customer utterance.
type Turn struct {
	TenantID         string                   `json:"tenantId"`
	SessionID        string                   `json:"sessionId"`
	Utterance        string                   `json:"utterance"`
	Language         string                   `json:"language"`
	Plan             string                   `json:"plan"`
	EnabledProviders routing.EnabledProviders `json:"enabledProviders"`

	// ForceFail makes the listed providers fail without being called.
	// Used to exercise the fallback path.
	ForceFail []string `json:"forceFail,omitempty"`
}

// Validate rejects malformed turns. Returned errors wrap ErrInvalidInput.
func (t *Turn) Validate() error {
	switch {
	case strings.TrimSpace(t.TenantID) == "":
		return fmt.Errorf("%w: tenantId is required", ErrInvalidInput)
	case strings.TrimSpace(t.SessionID) == "":
		return fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	case strings.TrimSpace(t.Utterance) == "":
		return fmt.Errorf("%w: utterance is required", ErrInvalidInput)
	case !utf8.ValidString(t.Utterance):
		return fmt.Errorf("%w: utterance is not valid UTF-8", ErrInvalidInput)
	case utf8.RuneCountInString(t.Utterance) > MaxUtteranceLength:
		return fmt.Errorf("%w: utterance exceeds %d characters", ErrInvalidInput, MaxUtteranceLength)
	case t.Language != "" && !languagePattern.MatchString(t.Language):
		return fmt.Errorf("%w: malformed language code %q", ErrInvalidInput, t.Language)
	}
	return nil
}

func (t *Turn) forced(provider string) bool {
	for _, id := range t.ForceFail {
		if id == provider {
			return true
		}
	}
	return false
}
