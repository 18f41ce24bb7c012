package profile

import (
	"testing"
)

// clearProviderEnv blanks every provider variable for the duration of a test.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, id := range ProviderIDs() {
		for _, suffix := range []string{"KIND", "API_KEY", "BASE_URL", "MODEL", "RATE_LIMIT"} {
			t.Setenv(envKey(id, suffix), "")
		}
		t.Setenv(providerDefaults[id].KeyEnv, "")
	}
	for _, key := range []string{
		"DISPATCHCORE_MEMORY_MAX_HISTORY",
		"DISPATCHCORE_MEMORY_MAX_TOKENS",
		"DISPATCHCORE_MEMORY_STALE_HOURS",
		"DISPATCHCORE_MEMORY_SWEEP",
		"DISPATCHCORE_PROVIDER_TIMEOUT_SECONDS",
		"DISPATCHCORE_PROVIDER_MAX_RETRIES",
		"DISPATCHCORE_LOG_LEVEL",
		"DISPATCHCORE_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearProviderEnv(t)

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected any
		actual   any
	}{
		{"MaxHistoryEvents default", 50, profile.MaxHistoryEvents},
		{"MaxContextTokens default", 4000, profile.MaxContextTokens},
		{"StaleSessionHours default", 24, profile.StaleSessionHours},
		{"MemorySweepSchedule default", "@hourly", profile.MemorySweepSchedule},
		{"ProviderTimeoutSeconds default", 30, profile.ProviderTimeoutSeconds},
		{"ProviderMaxRetries default", 3, profile.ProviderMaxRetries},
		{"MaxOutputTokens default", 500, profile.MaxOutputTokens},
		{"LogLevel default", "info", profile.LogLevel},
		{"LogFormat default", "text", profile.LogFormat},
		{"grok kind", ProviderKindOpenAI, profile.Providers["grok"].Kind},
		{"grok base url", "https://api.x.ai/v1", profile.Providers["grok"].BaseURL},
		{"gemini kind", ProviderKindGemini, profile.Providers["gemini"].Kind},
		{"anthropic kind", ProviderKindAnthropic, profile.Providers["anthropic"].Kind},
		{"atlasChat model", "MBZUAI-Paris/Atlas-Chat-9B", profile.Providers["atlasChat"].Model},
		{"no provider configured", 0, len(profile.ConfiguredProviders())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, tt.actual)
			}
		})
	}
}

func TestProfileFromEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("XAI_API_KEY", "xai-legacy")
	t.Setenv("DISPATCHCORE_ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("DISPATCHCORE_ATLASCHAT_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("DISPATCHCORE_GEMINI_RATE_LIMIT", "2.5")
	t.Setenv("DISPATCHCORE_MEMORY_MAX_HISTORY", "10")

	profile := &Profile{}
	profile.FromEnv()

	if got := profile.Providers["grok"].APIKey; got != "xai-legacy" {
		t.Errorf("grok api key: expected vendor variable fallback, got %q", got)
	}
	if got := profile.Providers["anthropic"].APIKey; got != "anthropic-key" {
		t.Errorf("anthropic api key: got %q", got)
	}
	if got := profile.Providers["atlasChat"].BaseURL; got != "http://localhost:8080/v1" {
		t.Errorf("atlasChat base url: got %q", got)
	}
	if got := profile.Providers["gemini"].RateLimit; got != 2.5 {
		t.Errorf("gemini rate limit: got %v", got)
	}
	if profile.MaxHistoryEvents != 10 {
		t.Errorf("max history: got %d", profile.MaxHistoryEvents)
	}

	configured := profile.ConfiguredProviders()
	if len(configured) != 2 || configured[0] != "grok" || configured[1] != "anthropic" {
		t.Errorf("configured providers: got %v", configured)
	}
}

func TestProfileValidate(t *testing.T) {
	clearProviderEnv(t)

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr bool
	}{
		{"memory driver", func(p *Profile) { p.Driver = "memory" }, false},
		{"empty driver becomes memory", func(p *Profile) { p.Driver = "" }, false},
		{"postgres without dsn", func(p *Profile) { p.Driver = "postgres" }, true},
		{"postgres with dsn", func(p *Profile) { p.Driver = "postgres"; p.DSN = "postgres://localhost/db" }, false},
		{"unknown driver", func(p *Profile) { p.Driver = "mysql" }, true},
		{"sqlite in temp dir", func(p *Profile) { p.Driver = "sqlite"; p.Data = t.TempDir() }, false},
		{"file with missing dir", func(p *Profile) { p.Driver = "file"; p.Data = "/nonexistent/dispatchcore" }, true},
		{"zero history", func(p *Profile) { p.MaxHistoryEvents = 0 }, true},
		{
			"openai-compatible without base url",
			func(p *Profile) {
				p.Providers["grok"] = ProviderProfile{ID: "grok", Kind: ProviderKindOpenAI, APIKey: "k"}
			},
			true,
		},
		{
			"unknown provider kind",
			func(p *Profile) {
				p.Providers["gemini"] = ProviderProfile{ID: "gemini", Kind: "bard", APIKey: "k"}
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{Mode: "dev"}
			p.FromEnv()
			tt.mutate(p)

			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProfileValidate_SQLiteDSN(t *testing.T) {
	clearProviderEnv(t)

	p := &Profile{Mode: "dev", Driver: "sqlite", Data: t.TempDir()}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.DSN == "" {
		t.Error("expected sqlite DSN to be derived from the data directory")
	}
}
