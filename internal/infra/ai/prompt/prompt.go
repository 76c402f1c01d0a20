package prompt

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	summaryExcerpt     = 500
	translationExcerpt = 1000
)

// GetSystemPrompt provides the role for every generative call.
func GetSystemPrompt() string {
	return `You are a careful multilingual text analyst. Answer in plain text only (no markdown, no code fences, no preamble). Keep answers short and professional.`
}

// SummaryPrompt asks for a 1-2 sentence insight about the sentiment of the
// user's own words.
func SummaryPrompt(req analysis.SummaryRequest) string {
	return fmt.Sprintf(`Analyze this text and provide a brief, insightful summary about its sentiment and emotional context:

Text: "%s"
Detected Language: %s
Primary Sentiment: %s (%d%% confidence)

Please provide a concise 1-2 sentence insight about:
1. The emotional tone and context
2. What this sentiment suggests about the user's experience or opinion

Keep it professional and analytical.`,
		Excerpt(req.Text, summaryExcerpt), req.Language, req.Label, Percent(req.Confidence))
}

// TranslationPrompt asks for a bare translation.
func TranslationPrompt(text, from, to string) string {
	return fmt.Sprintf(`Translate the following text from %s to %s.
Provide only the translation, no explanations:

"%s"`, from, to, Excerpt(text, translationExcerpt))
}

// Excerpt cuts s to max runes and marks the cut with an ellipsis.
func Excerpt(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// Percent renders a [0,1] confidence as a whole percentage.
func Percent(c float64) int {
	return int(math.Round(c * 100))
}

// CleanCompletion strips quotes and fences some models wrap answers in.
func CleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
