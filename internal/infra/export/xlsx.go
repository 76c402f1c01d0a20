// Package export renders analysis history as spreadsheets.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	sheet       = "History"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxTextCell = 500
)

var headers = []string{
	"Created At",
	"ID",
	"Type",
	"Source",
	"Language",
	"Sentiment",
	"Confidence",
	"Positive",
	"Negative",
	"Neutral",
	"Summary",
	"Text",
	"Tags",
	"Favorite",
	"Storage",
}

// HistoryXLSX returns the records as an XLSX workbook, one row per record.
func HistoryXLSX(recs []*analysis.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range recs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		scores := map[analysis.Label]float64{}
		for _, s := range r.SentimentScores {
			scores[s.Label] = s.Score
		}

		write(1, r.CreatedAt.UTC().Format(time.RFC3339))
		write(2, r.ID)
		write(3, string(r.Kind))
		write(4, source(r))
		write(5, r.DetectedLanguage.Name)
		write(6, string(r.PrimarySentiment.Label))
		write(7, round(r.PrimarySentiment.Confidence))
		write(8, round(scores[analysis.Positive]))
		write(9, round(scores[analysis.Negative]))
		write(10, round(scores[analysis.Neutral]))
		write(11, r.Summary)
		write(12, truncate(r.OriginalText, maxTextCell))
		write(13, strings.Join(r.Tags, ", "))
		write(14, r.Favorite)
		write(15, analysis.OriginOf(r.ID).String())
	}

	_ = f.SetColWidth(sheet, "A", "A", 22) // created
	_ = f.SetColWidth(sheet, "B", "B", 30) // id
	_ = f.SetColWidth(sheet, "D", "D", 40) // source
	_ = f.SetColWidth(sheet, "K", "L", 60) // summary, text

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func source(r *analysis.Record) string {
	switch {
	case r.Source.URL != "":
		return r.Source.URL
	case r.Source.FileName != "":
		return r.Source.FileName
	case r.Source.BatchSize > 0:
		return fmt.Sprintf("batch of %d", r.Source.BatchSize)
	}
	return "direct input"
}

func round(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
