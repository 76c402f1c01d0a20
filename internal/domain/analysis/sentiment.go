package analysis

// Normalize returns one score per canonical label, in canonical order,
// rescaled so the scores sum to 1. Missing labels count as zero; an
// all-zero input becomes a uniform split.
func Normalize(raw map[Label]float64) []SentimentScore {
	var total float64
	for _, l := range Labels {
		if v := raw[l]; v > 0 {
			total += v
		}
	}
	out := make([]SentimentScore, 0, len(Labels))
	for _, l := range Labels {
		v := raw[l]
		if v < 0 {
			v = 0
		}
		s := 1.0 / float64(len(Labels))
		if total > 0 {
			s = v / total
		}
		out = append(out, SentimentScore{Label: l, Score: s})
	}
	return out
}

// Primary picks the highest score; the first entry wins ties.
// An empty set yields NEUTRAL at 0.5.
func Primary(scores []SentimentScore) PrimarySentiment {
	if len(scores) == 0 {
		return PrimarySentiment{Label: Neutral, Confidence: 0.5}
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return PrimarySentiment{Label: best.Label, Confidence: best.Score}
}
