package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/internal/profile"
)

type stubClient struct{ id string }

func (s stubClient) ID() string { return s.id }

func (s stubClient) Call(context.Context, *Request) (*Response, error) {
	return &Response{Text: "ok"}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(stubClient{id: "gemini"})
	r.Register(stubClient{id: "anthropic"})

	c, ok := r.Get("gemini")
	require.True(t, ok)
	assert.Equal(t, "gemini", c.ID())

	_, ok = r.Get("grok")
	assert.False(t, ok)
	assert.Equal(t, []string{"anthropic", "gemini"}, r.IDs())

	var nilRegistry *Registry
	_, ok = nilRegistry.Get("gemini")
	assert.False(t, ok)
}

func TestNewRegistryFromProfile(t *testing.T) {
	p := &profile.Profile{
		MaxOutputTokens: 300,
		Providers: map[string]profile.ProviderProfile{
			"grok":      {ID: "grok", Kind: profile.ProviderKindOpenAI, APIKey: "xai", BaseURL: "https://api.x.ai/v1", Model: "grok"},
			"anthropic": {ID: "anthropic", Kind: profile.ProviderKindAnthropic, Model: "claude"},
			"atlasChat": {ID: "atlasChat", Kind: profile.ProviderKindOpenAI, APIKey: "hf", BaseURL: "https://router.example/v1", Model: "atlas"},
		},
	}

	r, err := NewRegistryFromProfile(p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"atlasChat", "grok"}, r.IDs())

	p.Providers["grok"] = profile.ProviderProfile{ID: "grok", Kind: "fax", APIKey: "k"}
	_, err = NewRegistryFromProfile(p, nil, nil)
	assert.Error(t, err)
}
