package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	cfg    Config
	client *genai.Client
}

// NewGeminiClient creates a Gemini adapter.
func NewGeminiClient(cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	cfg = cfg.withDefaults()

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{cfg: cfg, client: client}, nil
}

// ID implements Client.
func (c *GeminiClient) ID() string { return c.cfg.ID }

// Call implements Client.
func (c *GeminiClient) Call(ctx context.Context, req *Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.cfg.maxTokens(req)),
		Temperature:     genai.Ptr(c.cfg.temperature(req)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, err
	}

	out := &Response{
		Text:     resp.Text(),
		Model:    c.cfg.Model,
		Duration: time.Since(start),
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	slog.Debug("LLM: gemini generate",
		"provider", c.cfg.ID,
		"model", c.cfg.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
	)
	return out, nil
}

var _ Client = (*GeminiClient)(nil)
