package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Provider kinds select the client adapter for a provider.
const (
	ProviderKindOpenAI    = "openai"
	ProviderKindAnthropic = "anthropic"
	ProviderKindGemini    = "gemini"
)

// ProviderProfile is the configuration of one language-model backend.
type ProviderProfile struct {
	ID        string  // Identifier used by the routing table: grok, gemini, anthropic, atlasChat
	Kind      string  // Client adapter: openai (any OpenAI-compatible endpoint), anthropic, gemini
	APIKey    string  // Empty means not configured; the provider is skipped without retries
	BaseURL   string  // Optional for anthropic/gemini, required for openai-compatible
	Model     string  // Model name
	RateLimit float64 // Client-side requests per second (0 = unlimited)
}

// IsConfigured returns true if the provider has credentials.
func (p ProviderProfile) IsConfigured() bool {
	return p.APIKey != ""
}

// Profile is configuration to start the dispatch core.
type Profile struct {
	// Server
	Mode    string
	Addr    string
	Port    int
	Data    string
	Version string

	// Storage
	Driver        string // memory, file, sqlite, postgres, redis
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	// Conversation memory
	MaxHistoryEvents    int    // Compaction threshold (default: 50)
	MaxContextTokens    int    // Default LLM context budget (default: 4000)
	StaleSessionHours   int    // TTL sweep horizon (default: 24)
	MemorySweepSchedule string // Cron spec for the TTL sweep (default: @hourly)

	// Dispatch
	ProviderTimeoutSeconds int // Per-attempt provider timeout (default: 30)
	ProviderMaxRetries     int // Attempts per provider on transient errors (default: 3)
	MaxOutputTokens        int // Completion cap sent to providers (default: 500)
	UsageQueueSize         int // Async usage persistence queue (default: 256)

	// AlertWebhookURL receives budget alerts as JSON when set.
	AlertWebhookURL string

	// Providers keyed by routing id
	Providers map[string]ProviderProfile
}

// Provider default configurations.
// Used when the corresponding *_BASE_URL / *_MODEL variables are not set.
var providerDefaults = map[string]struct {
	Kind    string
	BaseURL string
	Model   string
	KeyEnv  string
}{
	"grok": {
		Kind:    ProviderKindOpenAI,
		BaseURL: "https://api.x.ai/v1",
		Model:   "grok-4-1-fast-reasoning",
		KeyEnv:  "XAI_API_KEY",
	},
	"gemini": {
		Kind:   ProviderKindGemini,
		Model:  "gemini-3-flash-preview",
		KeyEnv: "GEMINI_API_KEY",
	},
	"anthropic": {
		Kind:   ProviderKindAnthropic,
		Model:  "claude-opus-4-5-20251101",
		KeyEnv: "ANTHROPIC_API_KEY",
	},
	"atlasChat": {
		Kind:    ProviderKindOpenAI,
		BaseURL: "https://router.huggingface.co/featherless-ai/v1",
		Model:   "MBZUAI-Paris/Atlas-Chat-9B", // Darija-specialised
		KeyEnv:  "HUGGINGFACE_API_KEY",
	},
}

// ProviderIDs returns the built-in provider identifiers in routing order.
func ProviderIDs() []string {
	return []string{"grok", "gemini", "anthropic", "atlasChat"}
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// ConfiguredProviders returns the ids of providers with credentials.
func (p *Profile) ConfiguredProviders() []string {
	var ids []string
	for _, id := range ProviderIDs() {
		if p.Providers[id].IsConfigured() {
			ids = append(ids, id)
		}
	}
	return ids
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultFloat returns environment variable value as float64 or default value.
func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// envKey maps a provider id to its DISPATCHCORE_<ID>_ prefix.
func envKey(id, suffix string) string {
	return "DISPATCHCORE_" + strings.ToUpper(id) + "_" + suffix
}

// FromEnv loads configuration from environment variables.
// Values already set on the profile (e.g. from flags) win over the environment.
func (p *Profile) FromEnv() {
	if p.RedisAddr == "" {
		p.RedisAddr = getEnvOrDefault("DISPATCHCORE_REDIS_ADDR", "localhost:6379")
	}
	p.RedisPassword = getEnvOrDefault("DISPATCHCORE_REDIS_PASSWORD", p.RedisPassword)
	p.RedisDB = getEnvOrDefaultInt("DISPATCHCORE_REDIS_DB", p.RedisDB)

	if p.LogLevel == "" {
		p.LogLevel = getEnvOrDefault("DISPATCHCORE_LOG_LEVEL", "info")
	}
	if p.LogFormat == "" {
		p.LogFormat = getEnvOrDefault("DISPATCHCORE_LOG_FORMAT", "text")
	}

	p.MaxHistoryEvents = getEnvOrDefaultInt("DISPATCHCORE_MEMORY_MAX_HISTORY", 50)
	p.MaxContextTokens = getEnvOrDefaultInt("DISPATCHCORE_MEMORY_MAX_TOKENS", 4000)
	p.StaleSessionHours = getEnvOrDefaultInt("DISPATCHCORE_MEMORY_STALE_HOURS", 24)
	p.MemorySweepSchedule = getEnvOrDefault("DISPATCHCORE_MEMORY_SWEEP", "@hourly")

	p.ProviderTimeoutSeconds = getEnvOrDefaultInt("DISPATCHCORE_PROVIDER_TIMEOUT_SECONDS", 30)
	p.ProviderMaxRetries = getEnvOrDefaultInt("DISPATCHCORE_PROVIDER_MAX_RETRIES", 3)
	p.MaxOutputTokens = getEnvOrDefaultInt("DISPATCHCORE_PROVIDER_MAX_TOKENS", 500)
	p.UsageQueueSize = getEnvOrDefaultInt("DISPATCHCORE_USAGE_QUEUE_SIZE", 256)
	p.AlertWebhookURL = getEnvOrDefault("DISPATCHCORE_ALERT_WEBHOOK_URL", p.AlertWebhookURL)

	if p.Providers == nil {
		p.Providers = make(map[string]ProviderProfile)
	}
	for _, id := range ProviderIDs() {
		defaults := providerDefaults[id]
		p.Providers[id] = ProviderProfile{
			ID:        id,
			Kind:      getEnvOrDefault(envKey(id, "KIND"), defaults.Kind),
			APIKey:    getEnvOrDefault(envKey(id, "API_KEY"), os.Getenv(defaults.KeyEnv)),
			BaseURL:   getEnvOrDefault(envKey(id, "BASE_URL"), defaults.BaseURL),
			Model:     getEnvOrDefault(envKey(id, "MODEL"), defaults.Model),
			RateLimit: getEnvOrDefaultFloat(envKey(id, "RATE_LIMIT"), 0),
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and reports configuration errors.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Driver {
	case "", "memory":
		p.Driver = "memory"
		return p.validateProviders()
	case "redis":
		if p.RedisAddr == "" {
			return errors.New("redis address required")
		}
		return p.validateProviders()
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn required for postgres driver")
		}
		return p.validateProviders()
	case "file", "sqlite":
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "dispatchcore")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/dispatchcore"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("dispatchcore_%s.db", p.Mode))
	}

	return p.validateProviders()
}

func (p *Profile) validateProviders() error {
	if p.MaxHistoryEvents < 1 {
		return errors.Errorf("max history events must be positive, got %d", p.MaxHistoryEvents)
	}
	if p.ProviderMaxRetries < 1 {
		return errors.Errorf("provider max retries must be positive, got %d", p.ProviderMaxRetries)
	}
	for id, provider := range p.Providers {
		if !provider.IsConfigured() {
			continue
		}
		switch provider.Kind {
		case ProviderKindOpenAI:
			if provider.BaseURL == "" {
				return errors.Errorf("provider %s: base url required for openai-compatible endpoint", id)
			}
		case ProviderKindAnthropic, ProviderKindGemini:
		default:
			return errors.Errorf("provider %s: unknown kind %q", id, provider.Kind)
		}
	}
	return nil
}
