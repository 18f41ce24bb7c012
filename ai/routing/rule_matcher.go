package routing

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for task classification (called on every turn).
// Vocabulary covers French, English, Spanish and Arabic/Darija.
var (
	qualificationPatternRegex  = regexp.MustCompile(`(?i)budget|prix|tarif|co[uû]t|combien|d[eé]lai|timeline|urgence|urgent|d[eé]cid|responsable|qui d[eé]cide|price|cost|how much|deadline|decision|when.*start|quand.*commencer|precio|cu[aá]nto|plazo|presupuesto|ميزاني|سعر|ثمن`)
	recommendationPatternRegex = regexp.MustCompile(`(?i)recommand|suggest|propos|conseill|quoi (acheter|choisir)|quel.*(produit|service|plan|offre|formule)|meilleur.*(option|choix)|recommend|which.*plan|best.*option|قترح|شنو نشري|واش عندكم`)
	supportPatternRegex        = regexp.MustCompile(`(?i)probl[eè]m|bug|erreur|marche pas|fonctionne pas|ne.*pas|aide|comment faire|help|issue|error|broken|not working|how to|can't|doesn't work|مشكل|ما خدامش`)
)

// RuleMatcher implements rule-based task classification.
// Matching is case-insensitive pattern matching, no tokenization.
type RuleMatcher struct {
	dialectLanguages map[string]struct{}
}

// NewRuleMatcher creates a rule matcher. The given language codes force the
// dialect channel; with none, DialectLanguage is used.
func NewRuleMatcher(dialectLanguages ...string) *RuleMatcher {
	if len(dialectLanguages) == 0 {
		dialectLanguages = []string{DialectLanguage}
	}
	m := &RuleMatcher{dialectLanguages: make(map[string]struct{}, len(dialectLanguages))}
	for _, code := range dialectLanguages {
		m.dialectLanguages[normalizeLanguage(code)] = struct{}{}
	}
	return m
}

// Classify implements TaskClassifier.
//
// Priority: dialect language > qualification > recommendation > support > conversation.
func (m *RuleMatcher) Classify(utterance, language string) TaskType {
	if m.IsDialect(language) {
		return TaskDialect
	}

	switch {
	case qualificationPatternRegex.MatchString(utterance):
		return TaskQualification
	case recommendationPatternRegex.MatchString(utterance):
		return TaskRecommendation
	case supportPatternRegex.MatchString(utterance):
		return TaskSupport
	default:
		return TaskConversation
	}
}

// IsDialect reports whether the language code forces the dialect channel.
func (m *RuleMatcher) IsDialect(language string) bool {
	_, ok := m.dialectLanguages[normalizeLanguage(language)]
	return ok
}

func normalizeLanguage(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
