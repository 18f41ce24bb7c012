package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	cfg    Config
	client anthropic.Client
}

// NewAnthropicClient creates an Anthropic adapter. SDK retries are disabled;
// the dispatch layer owns retry and backoff.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	cfg = cfg.withDefaults()

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}, nil
}

// ID implements Client.
func (c *AnthropicClient) ID() string { return c.cfg.ID }

// Call implements Client.
func (c *AnthropicClient) Call(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.maxTokens(req)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(float64(c.cfg.temperature(req))),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	slog.Debug("LLM: anthropic message",
		"provider", c.cfg.ID,
		"model", c.cfg.Model,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)
	return &Response{
		Text:         sb.String(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		Model:        c.cfg.Model,
		Duration:     time.Since(start),
	}, nil
}

var _ Client = (*AnthropicClient)(nil)
