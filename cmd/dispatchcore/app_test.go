package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/ai/dispatch"
	"github.com/hrygo/dispatchcore/ai/observability/logging"
	"github.com/hrygo/dispatchcore/internal/profile"
)

func memoryProfile(t *testing.T) *profile.Profile {
	t.Helper()
	for _, key := range []string{"XAI_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY", "HUGGINGFACE_API_KEY"} {
		t.Setenv(key, "")
	}
	p := &profile.Profile{Mode: "dev", Driver: "memory", Version: "test"}
	p.FromEnv()
	require.NoError(t, p.Validate())
	return p
}

func TestNewApp_MemoryDriver(t *testing.T) {
	p := memoryProfile(t)
	a, err := newApp(context.Background(), p, logging.New("text", "error", io.Discard))
	require.NoError(t, err)
	defer a.close()

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Without API keys every provider is skipped as not configured.
	body := `{"tenantId":"acme","sessionId":"s1","utterance":"Bonjour","language":"fr","plan":"pro","enabledProviders":{"grok":{"enabled":true}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/turns", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), dispatch.ReasonNotConfigured)
}

func TestDispatchConfig(t *testing.T) {
	p := &profile.Profile{
		ProviderTimeoutSeconds: 10,
		ProviderMaxRetries:     5,
		MaxContextTokens:       2000,
		MaxOutputTokens:        300,
		Providers: map[string]profile.ProviderProfile{
			"grok":   {RateLimit: 2.5},
			"gemini": {},
		},
	}
	cfg := dispatchConfig(p)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2000, cfg.ContextTokenBudget)
	assert.Equal(t, 300, cfg.MaxOutputTokens)
	assert.Equal(t, map[string]float64{"grok": 2.5}, cfg.RateLimits)
}

func TestIsRunningAsSystemdService(t *testing.T) {
	t.Setenv("INVOCATION_ID", "")
	t.Setenv("WATCHDOG_USEC", "")
	assert.False(t, isRunningAsSystemdService())
	t.Setenv("INVOCATION_ID", "abc")
	assert.True(t, isRunningAsSystemdService())
}
