package tm

import "strings"

// Similarity weights. The combined score favours edit distance but
// keeps n-gram overlap so that reordered phrasings still match.
const (
	weightLevenshtein = 0.4
	weightBigram      = 0.3
	weightWord        = 0.3
)

// Similarity scores two texts in [0,1] as a weighted blend of
// normalised Levenshtein similarity, character-bigram Jaccard and
// word-set Jaccard.
func Similarity(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return weightLevenshtein*levenshteinSimilarity(a, b) +
		weightBigram*bigramJaccard(a, b) +
		weightWord*wordJaccard(a, b)
}

// levenshteinSimilarity is 1 - distance/maxLen over runes.
func levenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein computes edit distance with a two-row matrix.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// bigramJaccard is the Jaccard index over character bigrams.
func bigramJaccard(a, b string) float64 {
	return jaccard(bigrams(a), bigrams(b))
}

// wordJaccard is the Jaccard index over lowercase word sets.
func wordJaccard(a, b string) float64 {
	setA := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		setA[w] = true
	}
	setB := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(b)) {
		setB[w] = true
	}
	return jaccard(setA, setB)
}

func bigrams(s string) map[string]bool {
	runes := []rune(strings.ToLower(s))
	out := make(map[string]bool, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
