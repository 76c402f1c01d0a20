package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/infra/ai/prompt"
)

const (
	maxTokens    = 512
	defaultModel = "gpt-4o-mini"
)

type Client struct {
	*openai.Client
	Model  string
	Logger *slog.Logger
}

// NewClient builds a chat client. baseURL may point at any OpenAI-compatible
// endpoint (Gemini's compatibility layer included).
func NewClient(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model, Logger: logger}
}

func (c *Client) Summarize(ctx context.Context, req analysis.SummaryRequest) (string, error) {
	return c.complete(ctx, "summary", prompt.SummaryPrompt(req))
}

func (c *Client) Translate(ctx context.Context, text, from, to string) (string, error) {
	return c.complete(ctx, "translate", prompt.TranslationPrompt(text, from, to))
}

func (c *Client) complete(ctx context.Context, op, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.Model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	start := time.Now()
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		c.Logger.Warn("ai.openai.error", "op", op, "model", c.Model, "error", err)
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion", analysis.ErrBadResponse)
	}
	c.Logger.Info("ai.openai.done",
		"op", op,
		"model", c.Model,
		"tokens_in", resp.Usage.PromptTokens,
		"tokens_out", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return prompt.CleanCompletion(resp.Choices[0].Message.Content), nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", analysis.ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", analysis.ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: failed to create chat completion: %v", analysis.ErrUnavailable, err)
}
