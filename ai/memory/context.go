package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// LLMContext is the token-budgeted slice of a memory handed to a model.
type LLMContext struct {
	Identity       map[string]any `json:"identity"`
	Intent         map[string]any `json:"intent"`
	Qualification  map[string]any `json:"qualification"`
	KeyFacts       []KeyFact      `json:"keyFacts"`
	RecentHistory  []Event        `json:"recentHistory"`
	HistorySummary string         `json:"historySummary,omitempty"`
}

// GetContextForLLM returns identity, intent, qualification and key facts,
// plus as many of the most recent history events as fit in tokenBudget, in
// chronological order. The walk stops at the first event that does not fit.
// The summary is added when it still fits. A budget <= 0 uses the configured
// default.
func (b *Box) GetContextForLLM(ctx context.Context, id string, tokenBudget int) (*LLMContext, error) {
	mem, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.contextFor(mem, tokenBudget), nil
}

func (b *Box) contextFor(mem *ConversationMemory, budget int) *LLMContext {
	if budget <= 0 {
		budget = b.cfg.MaxTokenEstimate
	}

	llm := &LLMContext{
		Identity:      mem.Pillars.Identity,
		Intent:        mem.Pillars.Intent,
		Qualification: mem.Pillars.Qualification,
		KeyFacts:      mem.Pillars.KeyFacts,
		RecentHistory: []Event{},
	}
	current := b.estimateJSON(llm)

	history := mem.Pillars.History
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := b.estimateJSON(history[i])
		if current+tokens > budget {
			break
		}
		current += tokens
		start = i
	}
	llm.RecentHistory = append(llm.RecentHistory, history[start:]...)

	if summary := mem.Pillars.Summary; summary != "" {
		if current+b.estimateText(summary) <= budget {
			llm.HistorySummary = summary
		}
	}
	return llm
}

// IsEmpty reports whether the context carries nothing worth prompting with.
func (c *LLMContext) IsEmpty() bool {
	return c == nil || (len(c.Identity) == 0 && len(c.Intent) == 0 && len(c.Qualification) == 0 &&
		len(c.KeyFacts) == 0 && len(c.RecentHistory) == 0 && c.HistorySummary == "")
}

// Render formats the context as plain text for a system prompt.
func (c *LLMContext) Render() string {
	if c.IsEmpty() {
		return ""
	}

	var sb strings.Builder
	writeMap(&sb, "Identity", c.Identity)
	writeMap(&sb, "Intent", c.Intent)
	writeMap(&sb, "Qualification", c.Qualification)

	if len(c.KeyFacts) > 0 {
		sb.WriteString("Key facts:\n")
		for _, f := range c.KeyFacts {
			fmt.Fprintf(&sb, "- %s: %v (%s)\n", f.Type, f.Value, f.Source)
		}
	}
	if len(c.RecentHistory) > 0 {
		sb.WriteString("Recent history:\n")
		for _, e := range c.RecentHistory {
			fmt.Fprintf(&sb, "- [%s] %s %s", e.Timestamp.UTC().Format(isoLayout), e.Agent, e.Event)
			for _, k := range sortedKeys(e.Fields) {
				fmt.Fprintf(&sb, " %s=%v", k, e.Fields[k])
			}
			sb.WriteString("\n")
		}
	}
	if c.HistorySummary != "" {
		sb.WriteString("Summary:")
		sb.WriteString(c.HistorySummary)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeMap(sb *strings.Builder, title string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	sb.WriteString(title)
	sb.WriteString(":")
	for i, k := range sortedKeys(m) {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(sb, " %s=%v", k, m[k])
	}
	sb.WriteString("\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
