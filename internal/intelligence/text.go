package intelligence

import (
	"strings"

	"newsdesk/internal/domain/candidate"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {},
	"has": {}, "his": {}, "how": {}, "its": {}, "may": {}, "new": {}, "now": {}, "old": {},
	"see": {}, "two": {}, "who": {}, "did": {}, "get": {}, "let": {}, "say": {}, "she": {},
	"too": {}, "use": {}, "from": {}, "with": {}, "this": {}, "that": {}, "will": {}, "into": {},
	"over": {}, "after": {}, "amid": {}, "says": {}, "said": {}, "than": {}, "their": {}, "they": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "about": {}, "could": {}, "would": {},
}

// significantTokens returns the distinct words of at least three runes that
// are not stop words
func significantTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(candidate.NormalizeTitle(text)) {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// jaccard is |a∩b| / |a∪b|, 0 for two empty sets
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// containsPhrase matches a whole-word phrase inside normalized text
func containsPhrase(normalized, phrase string) bool {
	p := candidate.NormalizeTitle(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+p+" ")
}

func itemText(a *candidate.Annotated) string {
	return candidate.NormalizeTitle(a.Title + " " + a.Summary)
}
