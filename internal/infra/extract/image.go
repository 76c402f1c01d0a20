package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

var (
	blankLines  = regexp.MustCompile(`\n{3,}`)
	inlineSpace = regexp.MustCompile(`[ \t]+`)
)

// OCR recognises text in images with the tesseract CLI.
type OCR struct {
	Runner  Runner
	Binary  string
	Lang    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewOCR creates an OCR extractor with defaults filled in.
func NewOCR(binary, lang string, timeout time.Duration, logger *slog.Logger) *OCR {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCR{Runner: ExecRunner{Logger: logger}, Binary: binary, Lang: lang, Timeout: timeout, Logger: logger}
}

// Extract runs a single OCR pass; failures are not retried.
func (o *OCR) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", analysis.NewExtraction(analysis.CodeOCRFailed, "Failed to process uploaded file", fmt.Errorf("empty image"))
	}
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	stdout, stderr, err := o.Runner.Run(ctx, data, o.Binary, "stdin", "stdout", "-l", o.Lang)
	if err != nil {
		e := analysis.NewExtraction(analysis.CodeOCRFailed, "Failed to process uploaded file", err)
		e.Details = "Text recognition failed for this image: " + strings.TrimSpace(truncate(string(stderr), 512))
		return "", e
	}
	text := NormalizeOCR(string(stdout))
	o.Logger.Info("extract.ocr.done", "chars", len(text))
	return text, nil
}

// NormalizeOCR trims line noise left by tesseract.
func NormalizeOCR(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	s = inlineSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
