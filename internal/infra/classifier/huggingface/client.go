// Package huggingface calls a hosted text-classification model.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const DefaultURL = "https://api-inference.huggingface.co/models/cardiffnlp/twitter-roberta-base-sentiment-latest"

// responseSchema accepts [[{label,score}]] and the flat [{label,score}] form.
const responseSchema = `{
  "$defs": {
    "scores": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["label", "score"],
        "properties": {
          "label": {"type": "string"},
          "score": {"type": "number", "minimum": 0}
        }
      }
    }
  },
  "anyOf": [
    {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/scores"}},
    {"$ref": "#/$defs/scores"}
  ]
}`

type Client struct {
	URL    string
	APIKey string
	HTTP   *http.Client
	Logger *slog.Logger
	schema *jsonschema.Schema
}

func NewClient(url, apiKey string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("sentiment.json", strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("sentiment.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Client{
		URL:    url,
		APIKey: apiKey,
		HTTP:   &http.Client{Timeout: timeout},
		Logger: logger,
		schema: schema,
	}, nil
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *Client) Classify(ctx context.Context, text string) ([]analysis.SentimentScore, error) {
	if c.APIKey == "" {
		return nil, analysis.ErrNotConfigured
	}
	reqID := uuid.New().String()
	start := time.Now()

	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	c.Logger.Info("classifier.hf.request", "req_id", reqID, "chars", len(text))
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Logger.Warn("classifier.hf.send_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", analysis.ErrUnavailable, err)
	}
	c.Logger.Info("classifier.hf.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, analysis.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, analysis.ErrUnauthorized
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("%w: status %d", analysis.ErrUnavailable, resp.StatusCode)
	}
	return c.parse(raw)
}

func (c *Client) parse(raw []byte) ([]analysis.SentimentScore, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrBadResponse, err)
	}
	if err := c.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrBadResponse, err)
	}

	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err != nil {
		var flat []labelScore
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("%w: %v", analysis.ErrBadResponse, err)
		}
		nested = [][]labelScore{flat}
	}
	return mapLabels(nested[0]), nil
}

// positional order used by the cardiffnlp models when labels are generic
var positional = []analysis.Label{analysis.Negative, analysis.Neutral, analysis.Positive}

// mapLabels maps provider labels onto the canonical ones and normalises.
// Unknown labels fall back to their position in the reply.
func mapLabels(items []labelScore) []analysis.SentimentScore {
	raw := map[analysis.Label]float64{}
	for i, it := range items {
		label, ok := canonical(it.Label)
		if !ok {
			if i >= len(positional) {
				continue
			}
			label = positional[i]
		}
		raw[label] += it.Score
	}
	return analysis.Normalize(raw)
}

func canonical(label string) (analysis.Label, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "pos", "label_2":
		return analysis.Positive, true
	case "negative", "neg", "label_0":
		return analysis.Negative, true
	case "neutral", "neu", "label_1":
		return analysis.Neutral, true
	}
	return "", false
}
