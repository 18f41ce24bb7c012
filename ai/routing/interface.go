// Package routing classifies inbound turns into task types and derives the
// provider attempt order for each task type.
package routing

// ============================================================================
// ISP: Segregated interfaces for different consumer needs
// ============================================================================

// TaskClassifier handles task classification only.
type TaskClassifier interface {
	// Classify maps an utterance and its language code to a TaskType.
	// It never fails: unmatched input is a conversation.
	Classify(utterance, language string) TaskType
}

// ProviderOrderer handles provider ordering only.
type ProviderOrderer interface {
	// Order returns the preferred provider sequence for a task type,
	// restricted to the enabled providers. An empty result is not an error.
	Order(task TaskType, enabled EnabledProviders) []ProviderID
}

// TaskRouter is the aggregate interface consumed by the dispatch layer.
type TaskRouter interface {
	TaskClassifier
	ProviderOrderer
}

// TaskType represents the classification bucket guiding provider choice.
type TaskType string

const (
	TaskConversation   TaskType = "conversation"
	TaskQualification  TaskType = "qualification"
	TaskRecommendation TaskType = "recommendation"
	TaskSupport        TaskType = "support"
	TaskDialect        TaskType = "dialect"
)

// AllTaskTypes lists every task type in routing-table order.
var AllTaskTypes = []TaskType{
	TaskConversation,
	TaskQualification,
	TaskRecommendation,
	TaskSupport,
	TaskDialect,
}

// ProviderID identifies one language-model backend.
type ProviderID string

// Default backend identifiers. Deployments may route to other identifiers
// by supplying their own RoutingTable.
const (
	ProviderGrok      ProviderID = "grok"
	ProviderGemini    ProviderID = "gemini"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderAtlasChat ProviderID = "atlasChat"
)

// DialectLanguage is the language code that forces the dialect channel.
const DialectLanguage = "ary"

// ProviderSetting is the per-tenant switch for one provider.
type ProviderSetting struct {
	Enabled bool `json:"enabled"`
}

// EnabledProviders maps provider ids to tenant settings. Absent providers
// are treated as disabled.
type EnabledProviders map[ProviderID]ProviderSetting

// IsEnabled reports whether the provider is present and switched on.
func (e EnabledProviders) IsEnabled(id ProviderID) bool {
	if e == nil {
		return false
	}
	return e[id].Enabled
}

// AllEnabled returns a setting map with every given provider switched on.
func AllEnabled(ids ...ProviderID) EnabledProviders {
	out := make(EnabledProviders, len(ids))
	for _, id := range ids {
		out[id] = ProviderSetting{Enabled: true}
	}
	return out
}
