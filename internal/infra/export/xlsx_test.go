package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

func TestHistoryXLSX(t *testing.T) {
	rec := analysis.NewRecord("u1", analysis.KindURL, analysis.Source{URL: "https://example.com"}, analysis.Result{
		OriginalText:     strings.Repeat("x", 600),
		DetectedLanguage: analysis.Language{Name: "English", ISOCode: "en", Confidence: 0.9},
		SentimentScores:  analysis.Normalize(map[analysis.Label]float64{analysis.Positive: 3, analysis.Negative: 1}),
		PrimarySentiment: analysis.PrimarySentiment{Label: analysis.Positive, Confidence: 0.75},
		Summary:          "upbeat",
	})
	rec.ID = "local_1_abcdefghi"
	rec.Tags = []string{"a", "b"}
	rec.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	b, err := HistoryXLSX([]*analysis.Record{rec})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, headers, rows[0])
	require.Equal(t, "2024-03-01T12:00:00Z", rows[1][0])
	require.Equal(t, "https://example.com", rows[1][3])
	require.Equal(t, "POSITIVE", rows[1][5])
	require.Equal(t, "a, b", rows[1][12])
	require.Equal(t, "local", rows[1][14])
	require.Len(t, []rune(rows[1][11]), maxTextCell+1)
}

func TestHistoryXLSXEmpty(t *testing.T) {
	b, err := HistoryXLSX(nil)
	require.NoError(t, err)
	require.NotEmpty(t, b)
}
