// Package llm defines the provider client contract consumed by the dispatch
// core, together with adapters for the OpenAI-compatible, Anthropic and
// Gemini backends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Provider kinds select the adapter used for a backend.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
)

const (
	defaultMaxTokens   = 500
	defaultTemperature = 0.7
)

// ErrNotConfigured is returned for providers without credentials.
var ErrNotConfigured = errors.New("provider not configured")

// Request is one completion request.
type Request struct {
	System      string  // Memory-derived context, sent as the system prompt
	Prompt      string  // The end-customer utterance
	MaxTokens   int     // 0 uses the client default
	Temperature float32 // 0 uses the client default
}

// Response is the uniform provider answer.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	Model        string
	Duration     time.Duration
}

// Client is the uniform call shape every backend adapter implements.
// The dispatch core depends only on this interface.
type Client interface {
	// ID returns the routing identifier of the backend.
	ID() string
	// Call sends one request. Errors are classified with ClassifyError.
	Call(ctx context.Context, req *Request) (*Response, error)
}

// Config configures one provider adapter.
type Config struct {
	ID          string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 500
	Temperature float32 // default: 0.7
	HTTPClient  *http.Client
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.HTTPClient == nil {
		c.HTTPClient = newHTTPClient()
	}
	return c
}

func (c Config) maxTokens(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.MaxTokens
}

func (c Config) temperature(req *Request) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return c.Temperature
}

// NewClient creates the adapter for kind.
func NewClient(kind string, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.ID, ErrNotConfigured)
	}
	switch kind {
	case KindOpenAI:
		return NewOpenAICompatClient(cfg)
	case KindAnthropic:
		return NewAnthropicClient(cfg)
	case KindGemini:
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("%s: unknown provider kind %q", cfg.ID, kind)
	}
}

// newHTTPClient returns the shared transport settings for provider calls.
// Per-call deadlines come from the request context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
