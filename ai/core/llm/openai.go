package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompatClient calls any OpenAI-compatible chat completions endpoint.
// It backs grok (xAI) and the dialect model served through a router.
type OpenAICompatClient struct {
	cfg    Config
	client *openai.Client
}

// NewOpenAICompatClient creates an OpenAI-compatible adapter.
func NewOpenAICompatClient(cfg Config) (*OpenAICompatClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	cfg = cfg.withDefaults()

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = cfg.HTTPClient

	return &OpenAICompatClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// ID implements Client.
func (c *OpenAICompatClient) ID() string { return c.cfg.ID }

// Call implements Client.
func (c *OpenAICompatClient) Call(ctx context.Context, req *Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.maxTokens(req),
		Temperature: c.cfg.temperature(req),
	})
	if err != nil {
		return nil, err
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	slog.Debug("LLM: chat completion",
		"provider", c.cfg.ID,
		"model", c.cfg.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return &Response{
		Text:         text,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		Model:        c.cfg.Model,
		Duration:     time.Since(start),
	}, nil
}

var _ Client = (*OpenAICompatClient)(nil)
