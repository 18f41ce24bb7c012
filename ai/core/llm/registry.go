package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/hrygo/dispatchcore/internal/profile"
)

// Registry holds the configured provider clients keyed by routing id.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds or replaces a client under its ID.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
}

// Get returns the client for id. A missing client means the provider is
// not configured.
func (r *Registry) Get(id string) (Client, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewRegistryFromProfile registers a client for every provider in the
// profile that has credentials. Providers without credentials are skipped
// and later reported as not configured by the dispatch layer.
func NewRegistryFromProfile(p *profile.Profile, httpClient *http.Client, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = newHTTPClient()
	}

	registry := NewRegistry()
	for _, id := range profile.ProviderIDs() {
		provider, ok := p.Providers[id]
		if !ok || !provider.IsConfigured() {
			logger.Info("LLM: provider not configured, skipping", "provider", id)
			continue
		}
		client, err := NewClient(provider.Kind, Config{
			ID:         id,
			Model:      provider.Model,
			APIKey:     provider.APIKey,
			BaseURL:    provider.BaseURL,
			MaxTokens:  p.MaxOutputTokens,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", id, err)
		}
		registry.Register(client)
		logger.Info("LLM: provider registered", "provider", id, "kind", provider.Kind, "model", provider.Model)
	}
	return registry, nil
}
