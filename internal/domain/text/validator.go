package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	MinChars             = 3
	MaxChars             = 5000
	MaxCorruptionRatio   = 0.4
	MinUniqueRatio       = 0.3
	RepetitionMinWords   = 20
	MinMeaningfulWords   = 3
	TruncationNotice     = "Text was truncated to 5000 characters for processing"
	corruptedMessage     = "Extracted text appears to be corrupted or unreadable. This might be a scanned document or image-based PDF. Try converting the PDF to text format or using an image file instead."
	repetitiveMessage    = "Extracted text appears to be repetitive or meaningless. This might be a corrupted PDF or scanned document."
	insufficientMessage  = "Insufficient meaningful text for analysis. Please provide at least 3 meaningful words."
	emptyMessage         = "No text could be extracted from the input"
	tooShortMessage      = "Extracted text is too short for meaningful analysis"
	commonPunctuationSet = ".,!?;:()[]{}\"'`~@#$%^&*+=|\\/<>-_"
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	longWordRe = regexp.MustCompile(`[\p{L}\p{N}_]{20,}`)
	mixedAlnum = regexp.MustCompile(`\p{L}{2,}\p{N}{3,}`)
)

// Validation is the outcome of a successful Validate call.
type Validation struct {
	Text      string
	Truncated bool
	Notice    string
}

// Validate is the single gate every input passes before analysis.
func Validate(raw string) (Validation, error) {
	if strings.TrimSpace(raw) == "" {
		return Validation{}, analysis.NewValidation(analysis.CodeEmptyInput, emptyMessage)
	}

	clean := NormalizeSpace(raw)
	if utf8.RuneCountInString(clean) < MinChars {
		return Validation{}, analysis.NewValidation(analysis.CodeTooShort, tooShortMessage)
	}

	if CorruptionRatio(clean) > MaxCorruptionRatio {
		return Validation{}, analysis.NewValidation(analysis.CodeLikelyCorrupted, corruptedMessage)
	}

	words := strings.Split(clean, " ")
	if len(words) > RepetitionMinWords && UniqueRatio(words) < MinUniqueRatio {
		return Validation{}, analysis.NewValidation(analysis.CodeRepetitive, repetitiveMessage)
	}

	if countMeaningful(words) < MinMeaningfulWords {
		return Validation{}, analysis.NewValidation(analysis.CodeInsufficientContent, insufficientMessage)
	}

	if utf8.RuneCountInString(clean) > MaxChars {
		return Validation{
			Text:      string([]rune(clean)[:MaxChars]) + "...",
			Truncated: true,
			Notice:    TruncationNotice,
		}, nil
	}
	return Validation{Text: clean}, nil
}

// NormalizeSpace collapses whitespace runs into single spaces and trims.
func NormalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// CorruptionRatio counts indicator hits per character. Every non-printable
// or unusual rune is a hit, and so is every over-long word or letter run
// glued to a long number.
func CorruptionRatio(s string) float64 {
	total := utf8.RuneCountInString(s)
	if total == 0 {
		return 0
	}
	hits := 0
	for _, r := range s {
		if nonPrintable(r) {
			hits++
		}
		if unusual(r) {
			hits++
		}
	}
	hits += len(longWordRe.FindAllStringIndex(s, -1))
	hits += len(mixedAlnum.FindAllStringIndex(s, -1))
	return float64(hits) / float64(total)
}

// UniqueRatio is distinct tokens over total tokens.
func UniqueRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

func nonPrintable(r rune) bool {
	if r == utf8.RuneError || unicode.Is(unicode.Co, r) {
		return true
	}
	return !unicode.IsGraphic(r) && !unicode.IsSpace(r)
}

// unusual is anything that is not a letter, digit, space or punctuation.
// Symbols like emoji count; accented and non-Latin letters do not.
func unusual(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r), unicode.IsSpace(r):
		return false
	case unicode.IsPunct(r), strings.ContainsRune(commonPunctuationSet, r):
		return false
	}
	return true
}

// unspaced scripts do not separate words with spaces; a run of them is
// counted as one word per two characters.
var unspaced = []*unicode.RangeTable{unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai, unicode.Lao, unicode.Khmer, unicode.Myanmar}

func countMeaningful(words []string) int {
	n := 0
	for _, word := range words {
		for _, w := range strings.FieldsFunc(word, unicode.IsPunct) {
			n += meaningful(w)
		}
	}
	return n
}

func meaningful(w string) int {
	size := utf8.RuneCountInString(w)
	if size <= 1 || !alnum(w) {
		return 0
	}
	if strings.IndexFunc(w, func(r rune) bool { return unicode.In(r, unspaced...) }) >= 0 {
		return size / 2
	}
	return 1
}

func alnum(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r) {
			return false
		}
	}
	return true
}
