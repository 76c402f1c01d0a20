// Package heuristic is the local keyword sentiment classifier used when the
// external service is unavailable.
package heuristic

import (
	"context"
	"strings"
	"unicode"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	neutralWeight    = 0.5
	intensifierBoost = 1.5
	negationWindow   = 3
	baseScore        = 0.1
)

func set(words string) map[string]struct{} {
	m := map[string]struct{}{}
	for _, w := range strings.Fields(words) {
		m[w] = struct{}{}
	}
	return m
}

var (
	positiveWords = set(`excellent amazing great wonderful fantastic awesome brilliant perfect outstanding
		superb magnificent incredible remarkable good nice beautiful lovely happy excited pleased
		satisfied delighted thrilled love loved adore enjoy enjoyed recommend impressive stunning
		marvelous spectacular exceptional phenomenal`)
	negativeWords = set(`terrible awful horrible disgusting worst hate hated disappointing disappointed
		pathetic useless garbage trash bad poor sad angry frustrated annoying irritating boring
		stupid ridiculous expensive overpriced slow broken defective faulty reject regret waste
		nightmare disaster catastrophe`)
	neutralWords = set(`okay ok fine average normal standard typical regular moderate fair adequate
		acceptable reasonable ordinary`)
	negators = set(`not no never none nobody nothing neither nor hardly barely without
		don't doesn't didn't isn't aren't wasn't weren't won't wouldn't can't cannot couldn't
		shouldn't haven't hasn't hadn't dont doesnt didnt isnt wasnt cant wont`)
	intensifiers = set(`very really extremely absolutely so totally incredibly super highly truly
		completely utterly deeply quite too most`)
)

// Classifier scores text from keyword hits, negations and intensifiers.
type Classifier struct{}

func New() *Classifier { return &Classifier{} }

func (c *Classifier) Classify(_ context.Context, text string) ([]analysis.SentimentScore, error) {
	return Score(text), nil
}

// Score never fails; the result always sums to 1.
func Score(text string) []analysis.SentimentScore {
	tokens := Tokenize(text)

	var pos, neg, neu float64
	hits := 0
	for i, tok := range tokens {
		_, isPos := positiveWords[tok]
		_, isNeg := negativeWords[tok]
		_, isNeu := neutralWords[tok]
		if !isPos && !isNeg && !isNeu {
			continue
		}
		hits++
		if isNeu {
			neu += neutralWeight
			continue
		}

		weight := 1.0
		if precededBy(tokens, i, 2, intensifiers) {
			weight *= intensifierBoost
		}
		if precededBy(tokens, i, negationWindow, negators) {
			// a negated word leans half way to the opposite pole
			neu += weight * neutralWeight
			if isPos {
				neg += weight * neutralWeight
			} else {
				pos += weight * neutralWeight
			}
			continue
		}
		if isPos {
			pos += weight
		} else {
			neg += weight
		}
	}

	if hits == 0 {
		return punctuation(text)
	}
	return analysis.Normalize(map[analysis.Label]float64{
		analysis.Positive: pos + baseScore,
		analysis.Negative: neg + baseScore,
		analysis.Neutral:  neu + baseScore,
	})
}

// punctuation is the last resort when no keyword matched.
func punctuation(text string) []analysis.SentimentScore {
	exclaims := strings.Count(text, "!")
	questions := strings.Count(text, "?")
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	shouting := letters >= 4 && float64(upper)/float64(letters) > 0.6

	switch {
	case exclaims > 0 || shouting:
		return analysis.Normalize(map[analysis.Label]float64{
			analysis.Positive: 0.45, analysis.Negative: 0.2, analysis.Neutral: 0.35,
		})
	case questions > 0:
		return analysis.Normalize(map[analysis.Label]float64{
			analysis.Positive: 0.25, analysis.Negative: 0.25, analysis.Neutral: 0.5,
		})
	}
	return analysis.Normalize(nil)
}

func precededBy(tokens []string, i, window int, words map[string]struct{}) bool {
	for j := i - 1; j >= 0 && j >= i-window; j-- {
		if _, ok := words[tokens[j]]; ok {
			return true
		}
	}
	return false
}

// Tokenize lowercases text and splits it into words, keeping inner
// apostrophes so contractions like "don't" survive.
func Tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "’", "'")
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := raw[:0]
	for _, t := range raw {
		t = strings.Trim(t, "'")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
