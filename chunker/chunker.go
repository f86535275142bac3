// Package chunker splits document text into translation-sized units.
//
// Two modes exist: the STEM-aware cursor mode, which never cuts inside
// a protected region, and the plain paragraph-accumulator mode for
// documents without protected content. Both guarantee termination and
// full coverage of the input.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/minhngdo/doctran/protect"
)

// Chunk is one unit of text scheduled for translation.
type Chunk struct {
	ID            int
	Text          string
	ContextBefore string // neighbour excerpt, reference only, never translated
	ContextAfter  string
	// OverlapChars is how many leading characters of Text already
	// appeared at the tail of the previous chunk. The merger scales it
	// by the target-language expansion factor when cutting duplication.
	OverlapChars int
	Metadata     map[string]string
}

// Config controls the chunking behaviour.
type Config struct {
	MaxChars      int // maximum characters per chunk; protected regions may exceed it
	ContextWindow int // width of the neighbour context excerpts
}

// Chunker converts document text into chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxChars == 0 {
		cfg.MaxChars = 2000
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = 200
	}
	return &Chunker{cfg: cfg}
}

var (
	paragraphBoundary = regexp.MustCompile(`\n\s*\n`)
	sentenceBoundary  = regexp.MustCompile(`[.!?]\s+`)
)

// Split divides text into chunks without cutting inside any of the
// given protected regions. Regions must be sorted and non-overlapping,
// as produced by protect.Detector.
func (c *Chunker) Split(text string, regions []protect.Region) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	cursor := 0
	for cursor < len(text) {
		end := c.splitPoint(text, regions, cursor)
		if end <= cursor {
			// Degenerate input: force progress to guarantee termination.
			end = nextRuneBoundary(text, cursor+1)
		}

		chunk := Chunk{
			ID:            len(chunks),
			Text:          text[cursor:end],
			ContextBefore: tailExcerpt(text[:cursor], c.cfg.ContextWindow),
			ContextAfter:  headExcerpt(text[end:], c.cfg.ContextWindow),
		}
		chunks = append(chunks, chunk)
		cursor = end
	}
	return chunks
}

// splitPoint computes the end of the chunk starting at cursor.
func (c *Chunker) splitPoint(text string, regions []protect.Region, cursor int) int {
	proposed := cursor + c.cfg.MaxChars
	if proposed >= len(text) {
		return len(text)
	}
	proposed = prevRuneBoundary(text, proposed)

	// A protected region overlapping (cursor, proposed) forces a safe
	// split: before the region when it starts inside the chunk, or past
	// its end when the chunk opens mid-region. Preserving STEM content
	// is mandatory even when the chunk exceeds MaxChars.
	for _, r := range regions {
		if r.End <= cursor {
			continue
		}
		if r.Start >= proposed {
			break
		}
		if r.End <= proposed {
			continue // fully inside the chunk, nothing to do
		}
		if r.Start > cursor {
			return r.Start
		}
		return r.End
	}

	window := text[cursor:proposed]

	// Prefer a paragraph boundary, then a sentence boundary. Boundaries
	// falling inside a fully contained region are not usable.
	if end, ok := lastSafeBoundary(paragraphBoundary, window, cursor, regions); ok {
		return end
	}
	if end, ok := lastSafeBoundary(sentenceBoundary, window, cursor, regions); ok {
		return end
	}
	return proposed
}

// lastSafeBoundary finds the rightmost match of re in window whose end
// does not land inside a protected region.
func lastSafeBoundary(re *regexp.Regexp, window string, cursor int, regions []protect.Region) (int, bool) {
	locs := re.FindAllStringIndex(window, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		end := cursor + locs[i][1]
		if !insideRegion(regions, end) {
			return end, true
		}
	}
	return 0, false
}

func insideRegion(regions []protect.Region, pos int) bool {
	for _, r := range regions {
		if r.Start < pos && pos < r.End {
			return true
		}
		if r.Start >= pos {
			break
		}
	}
	return false
}

// SplitPlain divides text by paragraphs, flushing the accumulator when
// the next paragraph would exceed MaxChars. The last paragraph of a
// flushed chunk is repeated at the head of the next chunk and recorded
// in OverlapChars so the merger can excise the duplication.
func (c *Chunker) SplitPlain(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	paragraphs := splitParagraphs(text)
	var pieces []string
	for _, p := range paragraphs {
		if len(p) <= c.cfg.MaxChars {
			pieces = append(pieces, p)
			continue
		}
		// Oversized paragraph: split by sentences, hard-cutting any
		// sentence that alone exceeds the limit.
		for _, s := range splitSentences(p) {
			if len(s) <= c.cfg.MaxChars {
				pieces = append(pieces, s)
				continue
			}
			pieces = append(pieces, hardCut(s, c.cfg.MaxChars)...)
		}
	}

	var chunks []Chunk
	var current []string
	currentLen := 0
	overlap := ""

	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n\n")
		chunk := Chunk{ID: len(chunks), Text: body}
		if overlap != "" {
			chunk.Text = overlap + "\n\n" + body
			chunk.OverlapChars = len(overlap) + len("\n\n")
		}
		chunks = append(chunks, chunk)
		overlap = current[len(current)-1]
		current = nil
		currentLen = 0
	}

	for _, p := range pieces {
		if currentLen+len(p) > c.cfg.MaxChars && len(current) > 0 {
			flush()
		}
		current = append(current, p)
		currentLen += len(p) + 2
	}
	flush()

	// Context excerpts from neighbours.
	for i := range chunks {
		if i > 0 {
			chunks[i].ContextBefore = tailExcerpt(chunks[i-1].Text, c.cfg.ContextWindow)
		}
		if i < len(chunks)-1 {
			chunks[i].ContextAfter = headExcerpt(chunks[i+1].Text, c.cfg.ContextWindow)
		}
	}
	return chunks
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := paragraphBoundary.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences is a simple sentence tokeniser: it splits after
// period/question-mark/exclamation followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// hardCut slices s into at-most-max byte pieces on rune boundaries.
func hardCut(s string, max int) []string {
	var out []string
	for len(s) > max {
		cut := prevRuneBoundary(s, max)
		if cut == 0 {
			cut = nextRuneBoundary(s, 1)
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// tailExcerpt returns at most width bytes from the end of s, snapped to
// a rune boundary.
func tailExcerpt(s string, width int) string {
	if len(s) <= width {
		return s
	}
	start := nextRuneBoundary(s, len(s)-width)
	return s[start:]
}

// headExcerpt returns at most width bytes from the start of s, snapped
// to a rune boundary.
func headExcerpt(s string, width int) string {
	if len(s) <= width {
		return s
	}
	end := prevRuneBoundary(s, width)
	return s[:end]
}

func prevRuneBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func nextRuneBoundary(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
