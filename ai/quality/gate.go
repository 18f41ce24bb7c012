// Package quality scores candidate answers before they reach the end user.
// A failing score makes the dispatcher fall through to the next provider.
package quality

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ScoreThreshold is the minimum score for an answer to pass.
const ScoreThreshold = 60

// Check names.
const (
	CheckNullResponse       = "null_response"
	CheckMinLength          = "min_length"
	CheckPriceHallucination = "price_hallucination"
	CheckOffTopic           = "off_topic"
	CheckRefusalWithContext = "refusal_with_context"
	CheckRepetition         = "repetition"
)

// Penalties applied by failing checks.
const (
	penaltyNullResponse = 100
	penaltyMinLength    = 50
	penaltyPrice        = 15
	penaltyOffTopic     = 45
	penaltyRefusal      = 20
	penaltyRepetition   = 20
)

const (
	minAnswerLength       = 10
	minContentWordLength  = 4 // strictly longer than 3 runes
	minOffTopicWords      = 2
	stemLength            = 4
	minStemmableLength    = 5
	refusalContextLength  = 50
	repetitionSentenceLen = 20
	minRepetitionSentence = 3
)

// Check is the outcome of one heuristic.
type Check struct {
	Name    string `json:"check"`
	Passed  bool   `json:"passed"`
	Penalty int    `json:"penalty"`
	Detail  string `json:"detail,omitempty"`
}

// Assessment is the transient result of scoring one answer.
type Assessment struct {
	Score    int     `json:"score"`
	Passed   bool    `json:"passed"`
	Checks   []Check `json:"checks"`
	Language string  `json:"language,omitempty"`
}

// Failed returns the checks that did not pass.
func (a Assessment) Failed() []Check {
	var failed []Check
	for _, c := range a.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Config configures the gate.
type Config struct {
	// KnownPrices are normalized prices that never count as hallucinated.
	KnownPrices []string
}

// DefaultConfig returns a Config with the published plan prices.
func DefaultConfig() Config {
	return Config{KnownPrices: append([]string(nil), defaultKnownPrices...)}
}

// Gate scores answers. It holds no mutable state and is safe for concurrent use.
type Gate struct {
	knownPrices map[string]struct{}
}

// NewGate creates a gate.
func NewGate(cfg Config) *Gate {
	return &Gate{knownPrices: toSet(cfg.KnownPrices...)}
}

var defaultGate = NewGate(DefaultConfig())

// Assess scores an answer with the default gate.
func Assess(response, query, knowledge, language string) Assessment {
	return defaultGate.Assess(response, query, knowledge, language)
}

// Assess scores response against the user's query and the knowledge that
// was supplied to the model. It never fails.
func (g *Gate) Assess(response, query, knowledge, language string) Assessment {
	if response == "" {
		return Assessment{
			Score:    0,
			Passed:   false,
			Checks:   []Check{{Name: CheckNullResponse, Passed: false, Penalty: penaltyNullResponse}},
			Language: language,
		}
	}

	trimmed := strings.TrimSpace(response)
	a := &assessor{score: 100}

	a.record(CheckMinLength, utf8.RuneCountInString(trimmed) >= minAnswerLength, penaltyMinLength, "")
	g.checkPrices(a, trimmed, knowledge)
	checkOffTopic(a, trimmed, query)
	checkRefusal(a, trimmed, knowledge)
	checkRepetition(a, trimmed)

	score := max(0, a.score)
	return Assessment{
		Score:    score,
		Passed:   score >= ScoreThreshold,
		Checks:   a.checks,
		Language: language,
	}
}

type assessor struct {
	score  int
	checks []Check
}

func (a *assessor) record(name string, passed bool, penalty int, detail string) {
	c := Check{Name: name, Passed: passed}
	if !passed {
		c.Penalty = penalty
		c.Detail = detail
		a.score -= penalty
	}
	a.checks = append(a.checks, c)
}

// checkPrices flags prices in the answer that appear neither in the
// knowledge nor in the known price list. Only evaluated when both sides
// carry prices.
func (g *Gate) checkPrices(a *assessor, response, knowledge string) {
	responsePrices := extractPrices(response)
	if len(responsePrices) == 0 {
		return
	}
	knowledgePrices := extractPrices(knowledge)
	if len(knowledgePrices) == 0 {
		return
	}

	grounded := toSet(knowledgePrices...)
	var invented []string
	for _, p := range responsePrices {
		if _, ok := grounded[p]; ok {
			continue
		}
		if _, ok := g.knownPrices[p]; ok {
			continue
		}
		invented = append(invented, p)
	}

	detail := ""
	if len(invented) > 0 {
		detail = "Invented: " + strings.Join(invented, ", ")
	}
	a.record(CheckPriceHallucination, len(invented) == 0, penaltyPrice, detail)
}

func checkOffTopic(a *assessor, response, query string) {
	lowerQuery := strings.ToLower(query)
	for _, marker := range injectionMarkers {
		if strings.Contains(lowerQuery, marker) {
			return
		}
	}

	words := contentWords(lowerQuery)
	if len(words) < minOffTopicWords {
		return
	}

	lowerResponse := strings.ToLower(response)
	covered := 0
	for _, w := range words {
		if isCovered(w, lowerResponse) {
			covered++
		}
	}

	a.record(CheckOffTopic, covered > 0, penaltyOffTopic,
		fmt.Sprintf("0/%d keywords found", len(words)))
}

// contentWords returns the lowercase query words longer than three runes
// that are not stop words.
func contentWords(lowerQuery string) []string {
	var words []string
	for _, raw := range strings.Fields(lowerQuery) {
		w := strings.TrimFunc(raw, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(w) < minContentWordLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}

func isCovered(word, lowerResponse string) bool {
	if appears(word, lowerResponse) {
		return true
	}
	for _, group := range synonymGroups {
		if !inGroup(word, group) {
			continue
		}
		for _, member := range group {
			if appears(member, lowerResponse) {
				return true
			}
		}
	}
	return false
}

// appears reports whether word occurs verbatim, or by its stem for words
// long enough to be stemmed.
func appears(word, lowerResponse string) bool {
	if strings.Contains(lowerResponse, word) {
		return true
	}
	if stem, ok := stemOf(word); ok {
		return strings.Contains(lowerResponse, stem)
	}
	return false
}

func inGroup(word string, group []string) bool {
	wordStem, wordStemmed := stemOf(word)
	for _, member := range group {
		if member == word {
			return true
		}
		if memberStem, ok := stemOf(member); ok && wordStemmed && memberStem == wordStem {
			return true
		}
	}
	return false
}

func stemOf(word string) (string, bool) {
	runes := []rune(word)
	if len(runes) < minStemmableLength {
		return "", false
	}
	return string(runes[:stemLength]), true
}

// checkRefusal is only evaluated when substantial knowledge was supplied:
// declining to answer is acceptable when there was nothing to answer from.
func checkRefusal(a *assessor, response, knowledge string) {
	if utf8.RuneCountInString(knowledge) <= refusalContextLength {
		return
	}
	a.record(CheckRefusalWithContext, !refusalPattern().MatchString(response), penaltyRefusal, "")
}

func checkRepetition(a *assessor, response string) {
	var sentences []string
	for _, s := range sentenceSplitPattern().Split(response, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) > repetitionSentenceLen {
			sentences = append(sentences, strings.ToLower(s))
		}
	}
	if len(sentences) < minRepetitionSentence {
		return
	}

	unique := toSet(sentences...)
	repeated := float64(len(unique)) < float64(len(sentences))*0.5
	a.record(CheckRepetition, !repeated, penaltyRepetition,
		fmt.Sprintf("%d/%d distinct sentences", len(unique), len(sentences)))
}
