package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/infra/ai/prompt"
)

const (
	maxTokens    = 512
	defaultModel = "claude-3-5-haiku-latest"
)

type Client struct {
	client anthropic.Client
	Model  string
	Logger *slog.Logger
}

func NewClient(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{client: anthropic.NewClient(opts...), Model: model, Logger: logger}
}

func (c *Client) Summarize(ctx context.Context, req analysis.SummaryRequest) (string, error) {
	return c.complete(ctx, "summary", prompt.SummaryPrompt(req))
}

func (c *Client) Translate(ctx context.Context, text, from, to string) (string, error) {
	return c.complete(ctx, "translate", prompt.TranslationPrompt(text, from, to))
}

func (c *Client) complete(ctx context.Context, op, user string) (string, error) {
	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.Model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: prompt.GetSystemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		c.Logger.Warn("ai.anthropic.error", "op", op, "model", c.Model, "error", err)
		return "", classify(err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			c.Logger.Info("ai.anthropic.done",
				"op", op,
				"model", c.Model,
				"tokens_in", message.Usage.InputTokens,
				"tokens_out", message.Usage.OutputTokens,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return prompt.CleanCompletion(block.Text), nil
		}
	}
	return "", fmt.Errorf("%w: no text content in Anthropic response", analysis.ErrBadResponse)
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", analysis.ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", analysis.ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: Anthropic API error: %v", analysis.ErrUnavailable, err)
}
