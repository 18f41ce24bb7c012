package routing

// Service combines the rule matcher and the provider strategy into a TaskRouter.
type Service struct {
	matcher  *RuleMatcher
	strategy *ProviderStrategy
}

// Config contains the configuration for the router service.
type Config struct {
	Table            RoutingTable // Provider preferences (default: DefaultRoutingTable)
	DialectLanguages []string     // Codes forcing the dialect channel (default: DialectLanguage)
}

// DefaultConfig returns a Config with the built-in table.
func DefaultConfig() Config {
	return Config{
		Table:            DefaultRoutingTable(),
		DialectLanguages: []string{DialectLanguage},
	}
}

// NewService creates a router service.
func NewService(cfg Config) *Service {
	table := cfg.Table
	if len(table) == 0 {
		table = DefaultRoutingTable()
	}
	return &Service{
		matcher:  NewRuleMatcher(cfg.DialectLanguages...),
		strategy: NewProviderStrategy(table),
	}
}

// Classify implements TaskClassifier.
func (s *Service) Classify(utterance, language string) TaskType {
	return s.matcher.Classify(utterance, language)
}

// Order implements ProviderOrderer.
func (s *Service) Order(task TaskType, enabled EnabledProviders) []ProviderID {
	return s.strategy.Order(task, enabled)
}

// Providers returns every provider id known to the routing table.
func (s *Service) Providers() []ProviderID {
	return s.strategy.Providers()
}

var _ TaskRouter = (*Service)(nil)
