// Package merge joins translated chunks back into one document,
// removing the duplicated overlap that chunking introduced.
package merge

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/minhngdo/doctran/translate"
)

const (
	// minWordOverlap is the shortest word-level suffix/prefix match
	// treated as a real duplication rather than coincidence.
	minWordOverlap = 2
	// minCharOverlap guards the character-level fallback.
	minCharOverlap = 20
	// minLCSOverlap guards the common-substring pass.
	minLCSOverlap = 30
	// lcsWindow bounds the text inspected by the substring pass.
	lcsWindow = 500
)

// expansionFactors estimates how much translated text grows relative
// to the source for a language pair. Used to map a source-side overlap
// count onto the translated chunk head.
var expansionFactors = map[string]float64{
	"en-vi": 1.2,
	"en-zh": 0.6,
	"en-ja": 0.9,
	"vi-en": 0.85,
	"zh-en": 1.6,
}

var (
	chunkMarker   = regexp.MustCompile(`\[CHUNK \d+\]`)
	spaceRuns     = regexp.MustCompile(`[ \t]{2,}`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// Config selects the language pair, which only affects the overlap
// expansion estimate.
type Config struct {
	SourceLang string
	TargetLang string
}

// Merger assembles translated chunks. Zero-value Config is usable.
type Merger struct {
	factor float64
}

// New returns a Merger for the given language pair.
func New(cfg Config) *Merger {
	factor := 1.0
	if f, ok := expansionFactors[cfg.SourceLang+"-"+cfg.TargetLang]; ok {
		factor = f
	}
	return &Merger{factor: factor}
}

// Merge joins results in chunk-id order and post-processes the output.
// Results may arrive in any order.
func (m *Merger) Merge(results []translate.Result) string {
	if len(results) == 0 {
		return ""
	}
	ordered := make([]translate.Result, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ChunkID < ordered[j].ChunkID })

	acc := ordered[0].Translated
	for _, r := range ordered[1:] {
		acc = m.join(acc, r)
	}
	return Clean(acc)
}

// join appends the next chunk to the accumulated text, cutting the
// duplicated head first.
func (m *Merger) join(acc string, r translate.Result) string {
	next := m.Dedupe(acc, r)
	if next == "" {
		return acc
	}
	return acc + separator(acc, next) + next
}

// Dedupe returns r.Translated with the portion duplicating prev's
// tail removed. Cut strategies run in priority order; the first that
// finds a duplication wins.
func (m *Merger) Dedupe(prev string, r translate.Result) string {
	next := r.Translated
	cut := 0
	switch {
	case r.OverlapChars > 0:
		cut = m.estimateCut(next, r.OverlapChars)
	default:
		if c := wordOverlapCut(prev, next); c > 0 {
			cut = c
		} else if c := charOverlapCut(prev, next); c > 0 {
			cut = c
		} else if c := lcsCut(prev, next); c > 0 {
			cut = c
		}
	}
	return strings.TrimLeft(next[cut:], " \t\n")
}

// estimateCut maps the source-side overlap count onto the translated
// head via the expansion factor, clamped to half of the chunk, then
// snaps forward to a word boundary.
func (m *Merger) estimateCut(next string, overlapChars int) int {
	est := int(float64(overlapChars) * m.factor)
	if max := len(next) / 2; est > max {
		est = max
	}
	return snapToWordEnd(next, est)
}

// wordOverlapCut finds the longest word sequence that ends acc and
// begins next, and returns how many bytes of next it covers.
func wordOverlapCut(acc, next string) int {
	accWords := strings.Fields(tail(acc, lcsWindow))
	nextWords := strings.Fields(head(next, lcsWindow))
	limit := len(accWords)
	if len(nextWords) < limit {
		limit = len(nextWords)
	}
	for k := limit; k >= minWordOverlap; k-- {
		if wordsEqual(accWords[len(accWords)-k:], nextWords[:k]) {
			// Locate the end of the k-th word inside next itself so
			// the cut respects next's original spacing.
			return endOfNthWord(next, k)
		}
	}
	return 0
}

func wordsEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// charOverlapCut is the fallback when word matching fails: the longest
// raw suffix of acc that prefixes next, at least minCharOverlap bytes.
func charOverlapCut(acc, next string) int {
	max := len(acc)
	if len(next) < max {
		max = len(next)
	}
	if max > lcsWindow {
		max = lcsWindow
	}
	for n := max; n >= minCharOverlap; n-- {
		if acc[len(acc)-n:] == next[:n] {
			return n
		}
	}
	return 0
}

// lcsCut finds the longest common substring between the tail of acc
// and the head of next. When it is long enough, everything in next up
// to the end of that substring is treated as duplicated.
func lcsCut(acc, next string) int {
	a := tail(acc, lcsWindow)
	b := head(next, lcsWindow)
	length, bEnd := longestCommonSubstring(a, b)
	if length < minLCSOverlap {
		return 0
	}
	return bEnd
}

// longestCommonSubstring returns the length of the longest common
// substring of a and b and the byte offset just past its occurrence
// in b.
func longestCommonSubstring(a, b string) (length, bEnd int) {
	if a == "" || b == "" {
		return 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > length {
					length = cur[j]
					bEnd = j
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return length, bEnd
}

// separator picks the glue between two fragments: a paragraph break
// when the first ends a sentence and the second starts one, otherwise
// a single space.
func separator(acc, next string) string {
	if acc == "" {
		return ""
	}
	last, _ := utf8.DecodeLastRuneInString(strings.TrimRight(acc, " \t\n"))
	first, _ := utf8.DecodeRuneInString(next)
	if (last == '.' || last == '!' || last == '?') && unicode.IsUpper(first) {
		return "\n\n"
	}
	return " "
}

// Clean normalizes whitespace and strips leftover chunk markers.
func Clean(s string) string {
	s = chunkMarker.ReplaceAllString(s, "")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = blankLineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// snapToWordEnd advances pos to the end of the word it lands in, then
// past any following whitespace, so a cut never leaves half a word.
func snapToWordEnd(s string, pos int) int {
	if pos >= len(s) {
		return len(s)
	}
	for pos < len(s) {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	for pos < len(s) {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}

// endOfNthWord returns the byte offset just past the n-th word of s.
func endOfNthWord(s string, n int) int {
	inWord := false
	words := 0
	for i, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			inWord = true
			words++
		}
		if words == n {
			// Walk to the end of this word.
			j := i
			for j < len(s) {
				rr, size := utf8.DecodeRuneInString(s[j:])
				if unicode.IsSpace(rr) {
					break
				}
				j += size
			}
			return j
		}
	}
	return len(s)
}

// tail returns at most n trailing bytes of s, aligned to a rune start.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// head returns at most n leading bytes of s, aligned to a rune end.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
