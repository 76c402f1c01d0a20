package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

func TestSummaryPrompt(t *testing.T) {
	p := SummaryPrompt(analysis.SummaryRequest{
		Text:       strings.Repeat("a", 600),
		Language:   "Spanish",
		Label:      analysis.Positive,
		Confidence: 0.876,
	})
	require.Contains(t, p, "Detected Language: Spanish")
	require.Contains(t, p, "POSITIVE (88% confidence)")
	require.Contains(t, p, strings.Repeat("a", 500)+"...")
	require.NotContains(t, p, strings.Repeat("a", 501))
}

func TestTranslationPrompt(t *testing.T) {
	p := TranslationPrompt("hola amigo", "Spanish", "English")
	require.Contains(t, p, "from Spanish to English")
	require.Contains(t, p, `"hola amigo"`)
}

func TestExcerptCountsRunes(t *testing.T) {
	require.Equal(t, "日本", Excerpt("日本", 2))
	require.Equal(t, "日本...", Excerpt("日本語", 2))
}

func TestCleanCompletion(t *testing.T) {
	require.Equal(t, "Hello", CleanCompletion("  \"Hello\"  "))
	require.Equal(t, "Hi there", CleanCompletion("```\nHi there\n```"))
}
