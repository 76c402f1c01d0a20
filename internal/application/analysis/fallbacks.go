package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/bryanwahyu/sentiment-api/internal/application/fallback"
	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const minSummaryChars = 10

var (
	errShortSummary    = errors.New("generated summary too short")
	errNoopTranslation = errors.New("translation returned the input unchanged")
)

var sentimentDescriptions = map[domain.Label]string{
	domain.Positive: "an optimistic and favorable view",
	domain.Negative: "concerns or dissatisfaction",
	domain.Neutral:  "a balanced or objective perspective",
}

// FallbackSummary is the deterministic summary used when no generated one is available.
func FallbackSummary(req domain.SummaryRequest) string {
	desc, ok := sentimentDescriptions[req.Label]
	if !ok {
		desc = "mixed emotions"
	}
	return fmt.Sprintf("This %s text expresses %s sentiment with %d%% confidence, indicating %s. The input is %s content.",
		req.Language,
		strings.ToLower(string(req.Label)),
		int(math.Round(req.Confidence*100)),
		desc,
		lengthQualifier(req.Text),
	)
}

func lengthQualifier(s string) string {
	switch n := utf8.RuneCountInString(s); {
	case n < 100:
		return "brief"
	case n < 500:
		return "moderate"
	default:
		return "substantial"
	}
}

// classify never fails: the heuristic is the last strategy.
func (s *Service) classify(ctx context.Context, input string) []domain.SentimentScore {
	var strategies []fallback.Strategy[string, []domain.SentimentScore]
	if s.Classifier != nil {
		strategies = append(strategies, fallback.Func[string, []domain.SentimentScore]{
			Label: "external",
			Fn:    s.Classifier.Classify,
		})
	}
	if s.Heuristic != nil {
		strategies = append(strategies, fallback.Func[string, []domain.SentimentScore]{
			Label: "heuristic",
			Fn:    s.Heuristic.Classify,
		})
	}
	chain := fallback.Chain[string, []domain.SentimentScore]{
		Name:       "analysis.classify",
		Strategies: strategies,
		Logger:     s.logger(),
	}
	scores, err := chain.Run(ctx, input)
	if err != nil || len(scores) == 0 {
		s.logger().Warn("analysis.classify.uniform", "error", err)
		return domain.Normalize(nil)
	}
	return scores
}

// summarize never returns an empty string.
func (s *Service) summarize(ctx context.Context, req domain.SummaryRequest) string {
	var strategies []fallback.Strategy[domain.SummaryRequest, string]
	if s.Generator != nil {
		strategies = append(strategies, fallback.Func[domain.SummaryRequest, string]{
			Label: "generator",
			Fn: func(ctx context.Context, req domain.SummaryRequest) (string, error) {
				out, err := s.Generator.Summarize(ctx, req)
				if err != nil {
					return "", err
				}
				out = strings.TrimSpace(out)
				if utf8.RuneCountInString(out) <= minSummaryChars {
					return "", errShortSummary
				}
				return out, nil
			},
		})
	}
	strategies = append(strategies, fallback.Func[domain.SummaryRequest, string]{
		Label: "template",
		Fn: func(_ context.Context, req domain.SummaryRequest) (string, error) {
			return FallbackSummary(req), nil
		},
	})
	chain := fallback.Chain[domain.SummaryRequest, string]{
		Name:       "analysis.summarize",
		Strategies: strategies,
		Logger:     s.logger(),
	}
	out, err := chain.Run(ctx, req)
	if err != nil {
		return FallbackSummary(req)
	}
	return out
}

// translate returns the input unchanged when no usable translation comes back.
func (s *Service) translate(ctx context.Context, input, from, to string) string {
	if strings.EqualFold(from, to) {
		return input
	}
	var strategies []fallback.Strategy[string, string]
	if s.Generator != nil {
		strategies = append(strategies, fallback.Func[string, string]{
			Label: "generator",
			Fn: func(ctx context.Context, in string) (string, error) {
				out, err := s.Generator.Translate(ctx, in, from, to)
				if err != nil {
					return "", err
				}
				out = strings.TrimSpace(out)
				if out == "" || out == in {
					return "", errNoopTranslation
				}
				return out, nil
			},
		})
	}
	strategies = append(strategies, fallback.Func[string, string]{
		Label: "identity",
		Fn:    func(_ context.Context, in string) (string, error) { return in, nil },
	})
	chain := fallback.Chain[string, string]{
		Name:       "analysis.translate",
		Strategies: strategies,
		Logger:     s.logger(),
	}
	out, err := chain.Run(ctx, input)
	if err != nil {
		return input
	}
	return out
}
