package extract

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	// MaxPDFChars caps recovered text before it reaches the validator.
	MaxPDFChars   = 2000
	sectionWindow = 2000
	minRecovered  = 20
	minLastResort = 10
	readableRatio = 0.4
	wordlikeRatio = 0.5
	pdfNoTextMsg  = "No readable text found in PDF. This might be a scanned document or image-based PDF."
	pdfCorruptMsg = "Extracted text appears to be corrupted or unreadable."
	pdfFailedMsg  = "Failed to extract text from PDF. Please try converting to image or using a different file."
	punctClass    = `\s.,!?;:()\[\]{}"'` + "`" + `~@#$%^&*+=|\\/<>-`
)

var (
	textObjectRe = regexp.MustCompile(`(?s)BT.*?ET`)
	literalRe    = regexp.MustCompile(`\((.*?)\)|<(.*?)>`)
	delimRe      = regexp.MustCompile(`[()<>]`)
	readableRe   = regexp.MustCompile(`[a-zA-Z0-9` + punctClass + `]`)
	controlRe    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	nonASCIIRe   = regexp.MustCompile(`[^\x20-\x7E]`)
	wsRe         = regexp.MustCompile(`\s+`)
	specialRe    = regexp.MustCompile(`[^\w` + punctClass + `]`)
	nonWordRe    = regexp.MustCompile(`[^\w]`)
	letterRe     = regexp.MustCompile(`[a-zA-Z]`)
	alphaRe      = regexp.MustCompile(`^[A-Za-z]+$`)
	vowelRe      = regexp.MustCompile(`[aeiouyAEIOUY]`)

	wordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[A-Za-z]{2,}`),
		regexp.MustCompile(`[0-9]+`),
		regexp.MustCompile(`[A-Za-z\s]{5,}`),
	}
	shortWords = map[string]bool{
		"a": true, "i": true, "am": true, "an": true, "as": true, "at": true, "be": true,
		"by": true, "do": true, "go": true, "he": true, "if": true, "in": true, "is": true,
		"it": true, "me": true, "my": true, "no": true, "of": true, "on": true, "or": true,
		"so": true, "to": true, "up": true, "us": true, "we": true,
	}
	sectionMarkers = []*regexp.Regexp{
		regexp.MustCompile(`/Text\s+(\d+)\s+\d+\s+R`),
		regexp.MustCompile(`/Contents\s+(\d+)\s+\d+\s+R`),
		regexp.MustCompile(`/Page\s+(\d+)\s+\d+\s+R`),
		regexp.MustCompile(`/Font\s+(\d+)\s+\d+\s+R`),
		regexp.MustCompile(`/Resources\s+(\d+)\s+\d+\s+R`),
	}
)

var pdfcpuSetup sync.Once

// PDF recovers text from PDF bytes. Page content streams are decoded with
// pdfcpu first. When the file cannot be parsed, four scans run over the raw
// bytes in order and the first one with enough signal is cleaned and returned.
type PDF struct {
	Logger *slog.Logger
}

type pdfMethod struct {
	name string
	min  int
	scan func(raw string) string
}

var pdfMethods = []pdfMethod{
	{name: "stream", min: 1, scan: scanTextObjects},
	{name: "general", min: minRecovered + 1, scan: scanReadable},
	{name: "section", min: minRecovered + 1, scan: scanSections},
	{name: "last_resort", min: minLastResort + 1, scan: scanLastResort},
}

func (p *PDF) Extract(ctx context.Context, data []byte) (string, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(data) == 0 {
		return "", analysis.NewExtraction(analysis.CodePDFFailed, pdfFailedMsg, nil)
	}
	if content, ok := decodePages(data); ok {
		text := scanTextObjects(string(content))
		if text == "" {
			logger.Warn("extract.pdf.no_text", "method", "pdfcpu", "bytes", len(data))
			return "", analysis.NewExtraction(analysis.CodePDFNoText, pdfNoTextMsg, nil)
		}
		logger.Info("extract.pdf.hit", "method", "pdfcpu", "chars", len(text))
		return cleanRecovered(text)
	}

	raw := string(data)
	for _, m := range pdfMethods {
		if err := ctx.Err(); err != nil {
			return "", analysis.NewExtraction(analysis.CodePDFFailed, pdfFailedMsg, err)
		}
		candidate := m.scan(raw)
		if len(candidate) < m.min {
			logger.Debug("extract.pdf.miss", "method", m.name, "chars", len(candidate))
			continue
		}
		logger.Info("extract.pdf.hit", "method", m.name, "chars", len(candidate))
		// raw scans also match binary noise
		if !wordlike(candidate) {
			return "", analysis.NewExtraction(analysis.CodePDFCorrupted, pdfCorruptMsg, nil)
		}
		return cleanRecovered(candidate)
	}
	logger.Warn("extract.pdf.no_text", "bytes", len(data))
	return "", analysis.NewExtraction(analysis.CodePDFNoText, pdfNoTextMsg, nil)
}

// decodePages returns the decoded content streams of every page. ok is false
// when pdfcpu cannot read data as a PDF.
func decodePages(data []byte) (content []byte, ok bool) {
	defer func() {
		if recover() != nil {
			content, ok = nil, false
		}
	}()
	pdfcpuSetup.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil || ctx.PageCount == 0 {
		return nil, false
	}
	var buf bytes.Buffer
	pages := 0
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil || r == nil {
			continue
		}
		if _, err := io.Copy(&buf, r); err != nil {
			continue
		}
		buf.WriteByte('\n')
		pages++
	}
	return buf.Bytes(), pages > 0
}

// scanTextObjects pulls string literals out of BT...ET text objects.
func scanTextObjects(raw string) string {
	var b strings.Builder
	for _, obj := range textObjectRe.FindAllString(raw, -1) {
		for _, lit := range literalRe.FindAllString(obj, -1) {
			s := delimRe.ReplaceAllString(lit, "")
			if s != "" && isReadable(s) {
				b.WriteString(s)
				b.WriteByte(' ')
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func isReadable(s string) bool {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < 2 {
		return false
	}
	ok := len(readableRe.FindAllStringIndex(s, -1))
	return float64(ok)/float64(n) > readableRatio
}

func printableASCII(raw string) string {
	s := controlRe.ReplaceAllString(raw, " ")
	s = nonASCIIRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// scanReadable keeps word-like, numeric and long alphabetic runs.
func scanReadable(raw string) string {
	s := printableASCII(raw)
	var b strings.Builder
	for _, re := range wordPatterns {
		if m := re.FindAllString(s, -1); len(m) > 0 {
			b.WriteString(strings.Join(m, " "))
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// scanSections reads a window of printable bytes after each object marker.
func scanSections(raw string) string {
	var b strings.Builder
	for _, re := range sectionMarkers {
		loc := re.FindStringIndex(raw)
		if loc == nil {
			continue
		}
		end := loc[0] + sectionWindow
		if end > len(raw) {
			end = len(raw)
		}
		b.WriteString(printableASCII(raw[loc[0]:end]))
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

// scanLastResort keeps any token with a letter and two word characters.
func scanLastResort(raw string) string {
	s := controlRe.ReplaceAllString(raw, " ")
	s = strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
	var keep []string
	for _, w := range strings.Split(s, " ") {
		c := nonWordRe.ReplaceAllString(w, "")
		if len(c) > 1 && letterRe.MatchString(c) {
			keep = append(keep, w)
		}
	}
	return strings.Join(keep, " ")
}

// wordlike reports whether s has letters and at least half of the tokens
// containing letters read as words: 3 to 15 letters with a vowel, or a
// common short word.
func wordlike(s string) bool {
	var letters, words int
	for _, tok := range strings.Fields(specialRe.ReplaceAllString(s, "")) {
		if !letterRe.MatchString(tok) {
			continue
		}
		letters++
		w := strings.Trim(tok, `.,!?;:'"()`)
		if !alphaRe.MatchString(w) {
			continue
		}
		if shortWords[strings.ToLower(w)] || (len(w) >= 3 && len(w) <= 15 && vowelRe.MatchString(w)) {
			words++
		}
	}
	return letters > 0 && float64(words)/float64(letters) >= wordlikeRatio
}

// cleanRecovered strips leftovers, rejects repetitive output and caps length.
func cleanRecovered(s string) (string, error) {
	s = wsRe.ReplaceAllString(s, " ")
	s = specialRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(wsRe.ReplaceAllString(s, " "))

	words := strings.Split(s, " ")
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	if len(words) > minRecovered && float64(len(seen))/float64(len(words)) < 0.3 {
		return "", analysis.NewExtraction(analysis.CodePDFCorrupted, pdfCorruptMsg, nil)
	}
	if len(s) > MaxPDFChars {
		s = s[:MaxPDFChars] + "..."
	}
	return s, nil
}
