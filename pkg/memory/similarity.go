package memory

import (
	"math"
	"regexp"
	"strings"
)

var wordRE = regexp.MustCompile(`[a-zA-Z0-9]+`)

// tokenize lowercases and splits into words longer than 3 characters, the
// same rule the index uses for keyword extraction (§4.9).
func tokenize(s string) []string {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	out := words[:0:0]
	for _, w := range words {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func toSet(words []string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}

// jaccardSimilarity is |A∩B| / |A∪B| over tokenized word sets.
func jaccardSimilarity(a, b string) float64 {
	sa, sb := toSet(tokenize(a)), toSet(tokenize(b))
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for w := range sa {
		if sb[w] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// tagBoost adds a small bonus per query word that also appears verbatim
// among the record's tags, rewarding curated tags over incidental word
// overlap.
func tagBoost(queryWords []string, tags []string) float64 {
	if len(tags) == 0 {
		return 0
	}
	qs := toSet(queryWords)
	boost := 0.0
	for _, tag := range tags {
		if qs[strings.ToLower(tag)] {
			boost += 0.05
		}
	}
	return boost
}

// cosineSimilarity over two equal-length embedding vectors; 0 if either is
// empty or zero-norm.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
