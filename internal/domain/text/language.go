package text

import (
	"strings"
	"unicode"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const minLanguageConfidence = 0.1

type language struct {
	code   string
	name   string
	words  map[string]struct{}
	script func(r rune) bool
}

func wordSet(s string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		m[w] = struct{}{}
	}
	return m
}

func between(lo, hi rune) func(rune) bool {
	return func(r rune) bool { return r >= lo && r <= hi }
}

func isKana(r rune) bool { return r >= 0x3040 && r <= 0x30ff }

// languages is in enumeration order; the first best score wins.
var languages = []language{
	{code: "en", name: "English", words: wordSet("the and is in to of a that it with for as was on are you")},
	{code: "es", name: "Spanish", words: wordSet("el la de que y en un es se no te lo le da su por son con para al")},
	{code: "fr", name: "French", words: wordSet("le de et à un il être en avoir que pour dans ce son une sur avec")},
	{code: "de", name: "German", words: wordSet("der die und in den von zu das mit sich des auf für ist im dem nicht")},
	{code: "it", name: "Italian", words: wordSet("il di che e la per un in con del da dal le si non ci lo questo")},
	{code: "pt", name: "Portuguese", words: wordSet("o de e do da em um para com não uma os no se na por mais as dos")},
	{code: "ru", name: "Russian", script: func(r rune) bool { return (r >= 'а' && r <= 'я') || r == 'ё' }},
	{code: "ja", name: "Japanese", script: isKana},
	{code: "ko", name: "Korean", script: between(0xac00, 0xd7a3)},
	{code: "zh", name: "Chinese", script: between(0x4e00, 0x9faf)},
	{code: "ar", name: "Arabic", script: between(0x0627, 0x064a)},
	{code: "hi", name: "Hindi", script: between(0x0905, 0x0939)},
}

// LanguageName maps an ISO 639-1 code to its display name.
func LanguageName(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, l := range languages {
		if l.code == code {
			return l.name, true
		}
	}
	return "", false
}

// DetectLanguage scores every supported language by common-word hits or
// script characters and returns the best one. Equal scores resolve to the
// earlier language; callers must not rely on which one that is.
func DetectLanguage(s string) analysis.Language {
	lower := strings.ToLower(s)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	})

	best, bestScore := languages[0], -1
	for _, l := range languages {
		score := scoreLanguage(l, lower, tokens)
		if score > bestScore {
			best, bestScore = l, score
		}
	}

	words := len(strings.Fields(s))
	if words == 0 {
		words = 1
	}
	confidence := float64(bestScore) / float64(words)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < minLanguageConfidence {
		confidence = minLanguageConfidence
	}
	return analysis.Language{Name: best.name, Confidence: confidence, ISOCode: best.code}
}

func scoreLanguage(l language, lower string, tokens []string) int {
	n := 0
	if l.words != nil {
		for _, t := range tokens {
			if _, ok := l.words[t]; ok {
				n++
			}
		}
		return n
	}
	kana := 0
	han := 0
	for _, r := range lower {
		if l.script(r) {
			n++
		}
		if isKana(r) {
			kana++
		} else if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	// Japanese mixes kanji with kana; kanji only count once kana is present.
	if l.code == "ja" && kana > 0 {
		n += han
	}
	return n
}
