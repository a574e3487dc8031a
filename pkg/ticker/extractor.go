package ticker

import (
	"fmt"
	"regexp"
	"strings"
)

// Extractor finds tracked ticker symbols in free text. The alternation
// pattern is compiled once per configuration and shared by every lookup.
type Extractor struct {
	re *regexp.Regexp
}

// New builds an extractor for the tracked symbols. Matching is exact and
// word-bounded, so GOOG never matches inside GOOGLE.
func New(symbols []string) *Extractor {
	quoted := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(s))
	}
	if len(quoted) == 0 {
		return &Extractor{}
	}

	re := regexp.MustCompile(fmt.Sprintf(`\b(%s)\b`, strings.Join(quoted, "|")))
	return &Extractor{re: re}
}

// Extract returns each tracked symbol present in text at most once, in
// first-seen order.
func (e *Extractor) Extract(text string) []string {
	if e.re == nil || text == "" {
		return nil
	}

	matches := e.re.FindAllString(strings.ToUpper(text), -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var symbols []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			symbols = append(symbols, m)
		}
	}
	return symbols
}
