package routing

import "sync"

// RoutingTable maps task types to the full provider preference list.
type RoutingTable map[TaskType][]ProviderID

// ProviderStrategy derives provider attempt orders from a RoutingTable.
// Unknown task types fall back to the conversation row.
type ProviderStrategy struct {
	mu    sync.RWMutex
	table RoutingTable
}

// NewProviderStrategy creates a strategy over a copy of the given table.
func NewProviderStrategy(table RoutingTable) *ProviderStrategy {
	s := &ProviderStrategy{table: make(RoutingTable, len(table))}
	for task, order := range table {
		s.table[task] = append([]ProviderID(nil), order...)
	}
	return s
}

// NewDefaultProviderStrategy creates a strategy with the built-in table.
func NewDefaultProviderStrategy() *ProviderStrategy {
	return NewProviderStrategy(DefaultRoutingTable())
}

// DefaultRoutingTable returns the built-in provider preferences.
//
//   - conversation: lowest latency first
//   - qualification: strongest structured reasoning first
//   - recommendation, support: long-context data analysis first
//   - dialect: fast model, then the dialect-specialised model
func DefaultRoutingTable() RoutingTable {
	return RoutingTable{
		TaskConversation:   {ProviderGrok, ProviderGemini, ProviderAnthropic},
		TaskQualification:  {ProviderAnthropic, ProviderGemini, ProviderGrok},
		TaskRecommendation: {ProviderGemini, ProviderGrok, ProviderAnthropic},
		TaskSupport:        {ProviderGemini, ProviderAnthropic, ProviderGrok},
		TaskDialect:        {ProviderGrok, ProviderAtlasChat, ProviderGemini, ProviderAnthropic},
	}
}

// Order implements ProviderOrderer. The result is always a sub-sequence of
// the task's preference list.
func (s *ProviderStrategy) Order(task TaskType, enabled EnabledProviders) []ProviderID {
	preferences := s.Preferences(task)
	order := make([]ProviderID, 0, len(preferences))
	for _, id := range preferences {
		if enabled.IsEnabled(id) {
			order = append(order, id)
		}
	}
	return order
}

// Preferences returns a copy of the unfiltered preference list for a task.
func (s *ProviderStrategy) Preferences(task TaskType) []ProviderID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.table[task]
	if !ok {
		row = s.table[TaskConversation]
	}
	return append([]ProviderID(nil), row...)
}

// Register adds or replaces the preference list for a task type.
func (s *ProviderStrategy) Register(task TaskType, order []ProviderID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[task] = append([]ProviderID(nil), order...)
}

// Providers returns every provider id referenced by the table, in first-seen
// order over AllTaskTypes.
func (s *ProviderStrategy) Providers() []ProviderID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[ProviderID]bool)
	var out []ProviderID
	for _, task := range AllTaskTypes {
		for _, id := range s.table[task] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
