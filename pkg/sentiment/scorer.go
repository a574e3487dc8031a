package sentiment

import "strings"

// Keyword lists for the heuristic scorer. Matching is plain substring
// containment on lowercased text, so "upgrade" also counts "upgraded".
var positiveWords = []string{
	"buy", "bullish", "moon", "rocket", "gains", "up", "rise", "good",
	"great", "excellent", "strong", "beat", "winning", "profit", "growth",
	"increase", "bull", "positive", "optimistic", "upgrade",
}

var negativeWords = []string{
	"sell", "bearish", "crash", "dump", "loss", "down", "fall", "bad",
	"terrible", "weak", "miss", "losing", "decline", "decrease", "bear",
	"negative", "pessimistic", "downgrade", "short",
}

// Score rates text about a ticker between -1 (bearish) and 1 (bullish).
// Text that never mentions the ticker scores exactly 0, as does text with
// no sentiment keywords at all.
func Score(text, symbol string) float64 {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, strings.ToLower(symbol)) {
		return 0
	}

	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return 0
	}

	score := float64(pos-neg) / float64(total)
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}
