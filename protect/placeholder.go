package protect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Sentinel brackets. The Unicode white double angle brackets do not
// occur in supported source documents; if a source ever contains them
// the forward pass must be extended with a per-job nonce.
const (
	sentinelOpen  = "⟪" // ⟪
	sentinelClose = "⟫" // ⟫
)

// Placeholder records one substituted region.
type Placeholder struct {
	Token   string
	Content string
	Kind    Kind
	Subkind string
}

// Map is an ordered mapping from sentinel token to original content.
// Order follows the regions' positions in the source text.
type Map struct {
	order []string
	byTok map[string]Placeholder
}

// Len returns the number of placeholders.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Placeholders returns the placeholders in source order.
func (m *Map) Placeholders() []Placeholder {
	out := make([]Placeholder, 0, len(m.order))
	for _, tok := range m.order {
		out = append(out, m.byTok[tok])
	}
	return out
}

// Token derives the stable sentinel for a region: identical content
// yields an identical sentinel. The subkind (environment name, language
// tag) is part of the token when present.
func Token(kind Kind, subkind, content string) string {
	h := sha256.Sum256([]byte(content))
	short := hex.EncodeToString(h[:4])
	if subkind != "" {
		return fmt.Sprintf("%sSTEM_%s_%s_%s%s", sentinelOpen, kindTag(kind), subkindTag(subkind), short, sentinelClose)
	}
	return fmt.Sprintf("%sSTEM_%s_%s%s", sentinelOpen, kindTag(kind), short, sentinelClose)
}

// subkindTag normalises a subkind for embedding in a sentinel.
func subkindTag(subkind string) string {
	s := strings.ToUpper(subkind)
	s = strings.ReplaceAll(s, "*", "S")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

func kindTag(kind Kind) string {
	switch kind {
	case FormulaInline:
		return "FORMULA_INLINE"
	case FormulaBlock:
		return "FORMULA_BLOCK"
	case CodeInline:
		return "CODE_INLINE"
	case CodeBlock:
		return "CODE_BLOCK"
	case Chemical:
		return "CHEM_FORMULA"
	default:
		return "UNKNOWN"
	}
}

// Apply splices every region out of text, substituting its sentinel.
// Regions are processed in reverse positional order so earlier offsets
// stay valid. Returns the substituted text and the sentinel map.
func Apply(text string, regions []Region) (string, *Map) {
	m := &Map{byTok: make(map[string]Placeholder, len(regions))}
	if len(regions) == 0 {
		return text, m
	}

	out := text
	for i := len(regions) - 1; i >= 0; i-- {
		r := regions[i]
		if r.Start < 0 || r.End > len(out) || r.Start >= r.End {
			continue
		}
		content := text[r.Start:r.End]
		tok := Token(r.Kind, r.Subkind, content)
		if _, seen := m.byTok[tok]; !seen {
			m.byTok[tok] = Placeholder{Token: tok, Content: content, Kind: r.Kind, Subkind: r.Subkind}
		}
		out = out[:r.Start] + tok + out[r.End:]
	}

	// Record source order (regions are sorted ascending).
	seen := make(map[string]bool, len(regions))
	for _, r := range regions {
		tok := Token(r.Kind, r.Subkind, text[r.Start:r.End])
		if !seen[tok] {
			seen[tok] = true
			m.order = append(m.order, tok)
		}
	}
	return out, m
}

// RestoreReport describes the outcome of a reverse pass.
type RestoreReport struct {
	Restored      int      // sentinels replaced with original content
	Missing       []string // sentinels absent from the translated text
	TotalFormulas int
	TotalCode     int
	TotalChemical int
}

// PreservationRate is (restored formulas + restored code) over
// (total formulas + total code), 1.0 by convention when there were none.
func (r RestoreReport) PreservationRate() float64 {
	total := r.TotalFormulas + r.TotalCode
	if total == 0 {
		return 1.0
	}
	missingFC := 0
	for _, tok := range r.Missing {
		if !strings.Contains(tok, "CHEM") {
			missingFC++
		}
	}
	return float64(total-missingFC) / float64(total)
}

// Restore replaces every sentinel in translated with its original
// content. Sentinels the translator dropped are reported as missing;
// restoration itself never fails.
func (m *Map) Restore(translated string) (string, RestoreReport) {
	var report RestoreReport
	out := translated
	for _, tok := range m.order {
		ph := m.byTok[tok]
		switch ph.Kind {
		case FormulaInline, FormulaBlock:
			report.TotalFormulas++
		case CodeInline, CodeBlock:
			report.TotalCode++
		case Chemical:
			report.TotalChemical++
		}
		if !strings.Contains(out, tok) {
			report.Missing = append(report.Missing, tok)
			continue
		}
		out = strings.ReplaceAll(out, tok, ph.Content)
		report.Restored++
	}
	return out, report
}
