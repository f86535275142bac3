package protect

import (
	"sort"
	"strings"
	"unicode"
)

// Kind identifies the class of a protected region.
type Kind string

const (
	FormulaInline Kind = "formula-inline"
	FormulaBlock  Kind = "formula-block"
	CodeInline    Kind = "code-inline"
	CodeBlock     Kind = "code-block"
	Chemical      Kind = "chemical"
)

// Region is a half-open interval [Start, End) of text that must not be
// translated and must not be split across chunks. Subkind carries
// kind-specific detail: the LaTeX environment name, the fence language
// tag, or the delimiter form.
type Region struct {
	Start   int
	End     int
	Kind    Kind
	Subkind string
	Content string
}

// mathEnvironments is the fixed set of LaTeX environments treated as
// block formulas, each recognised with and without a trailing '*'.
var mathEnvironments = map[string]bool{
	"equation": true, "align": true, "gather": true, "multline": true,
	"split": true, "cases": true, "matrix": true, "pmatrix": true,
	"bmatrix": true, "vmatrix": true, "Vmatrix": true, "smallmatrix": true,
	"array": true, "alignat": true, "flalign": true, "eqnarray": true,
}

// englishAbbreviations are backtick-free tokens that the inline-code
// heuristic must never claim.
var englishAbbreviations = map[string]bool{
	"e.g.": true, "i.e.": true, "etc.": true, "cf.": true, "vs.": true,
	"Dr.": true, "Mr.": true, "Mrs.": true, "Ms.": true, "Prof.": true,
	"Fig.": true, "fig.": true, "Eq.": true, "eq.": true, "Ref.": true,
	"No.": true, "no.": true, "al.": true, "et al.": true,
}

// chemicalBlacklist filters element-like words that are prose, not formulas.
var chemicalBlacklist = map[string]bool{
	"Chemistry": true, "Chemical": true, "CHAPTER": true, "SECTION": true,
	"NOTE": true, "TABLE": true, "FIGURE": true, "III": true, "II": true,
}

// detection priorities; lower value wins when candidates overlap.
const (
	prioCodeFenced = iota
	prioMathEnv
	prioMathDisplay
	prioMathInline
	prioCodeInline
	prioCodeIndented
	prioChemical
	prioUnicodeMath
)

type candidate struct {
	Region
	prio int
}

// Detector locates formulas, code, and chemical formulas in text.
// Instantiate one per job; Detect is safe for concurrent use.
type Detector struct{}

// NewDetector returns a Detector.
func NewDetector() *Detector { return &Detector{} }

// Detect returns a sorted, non-overlapping list of protected regions.
// The detector never fails: ambiguous spans simply yield no region.
func (d *Detector) Detect(text string) []Region {
	if text == "" {
		return nil
	}

	var cands []candidate
	cands = append(cands, scanFencedCode(text)...)
	cands = append(cands, scanMathEnvironments(text)...)
	cands = append(cands, scanDisplayMath(text)...)
	cands = append(cands, scanInlineMath(text)...)
	cands = append(cands, scanInlineCode(text)...)
	cands = append(cands, scanIndentedCode(text)...)
	cands = append(cands, scanChemical(text)...)
	cands = append(cands, scanUnicodeMath(text)...)

	// Accept in order of decreasing priority, dropping any later match
	// that intersects an accepted one.
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].prio != cands[j].prio {
			return cands[i].prio < cands[j].prio
		}
		return cands[i].Start < cands[j].Start
	})

	var accepted []Region
	for _, c := range cands {
		ok := true
		for _, a := range accepted {
			if c.Start < a.End && a.Start < c.End {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c.Region)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// --- math scanners -----------------------------------------------------

// scanMathEnvironments finds \begin{NAME}...\end{NAME} for the fixed
// environment set. A linear scan avoids the catastrophic backtracking a
// naive alternating regex exhibits on long formulas.
func scanMathEnvironments(text string) []candidate {
	var out []candidate
	pos := 0
	for {
		i := strings.Index(text[pos:], `\begin{`)
		if i < 0 {
			break
		}
		start := pos + i
		nameStart := start + len(`\begin{`)
		close := strings.IndexByte(text[nameStart:], '}')
		if close < 0 {
			break
		}
		name := text[nameStart : nameStart+close]
		base := strings.TrimSuffix(name, "*")
		if !mathEnvironments[base] {
			pos = nameStart
			continue
		}
		endTag := `\end{` + name + `}`
		j := strings.Index(text[nameStart+close:], endTag)
		if j < 0 {
			pos = nameStart
			continue
		}
		end := nameStart + close + j + len(endTag)
		out = append(out, candidate{
			Region: Region{Start: start, End: end, Kind: FormulaBlock, Subkind: name, Content: text[start:end]},
			prio:   prioMathEnv,
		})
		pos = end
	}
	return out
}

// scanDisplayMath finds $$...$$ and \[...\] spans.
func scanDisplayMath(text string) []candidate {
	var out []candidate

	// $$...$$
	pos := 0
	for {
		i := strings.Index(text[pos:], "$$")
		if i < 0 {
			break
		}
		start := pos + i
		j := strings.Index(text[start+2:], "$$")
		if j < 0 {
			break
		}
		end := start + 2 + j + 2
		out = append(out, candidate{
			Region: Region{Start: start, End: end, Kind: FormulaBlock, Subkind: "display", Content: text[start:end]},
			prio:   prioMathDisplay,
		})
		pos = end
	}

	// \[...\]
	pos = 0
	for {
		i := strings.Index(text[pos:], `\[`)
		if i < 0 {
			break
		}
		start := pos + i
		j := strings.Index(text[start+2:], `\]`)
		if j < 0 {
			break
		}
		end := start + 2 + j + 2
		out = append(out, candidate{
			Region: Region{Start: start, End: end, Kind: FormulaBlock, Subkind: "bracket", Content: text[start:end]},
			prio:   prioMathDisplay,
		})
		pos = end
	}
	return out
}

// scanInlineMath finds $...$ and \(...\) spans. Single-dollar math must
// not match when adjacent to $$ and must stay on one line.
func scanInlineMath(text string) []candidate {
	var out []candidate

	pos := 0
	for pos < len(text) {
		i := strings.IndexByte(text[pos:], '$')
		if i < 0 {
			break
		}
		start := pos + i
		// Adjacent to $$: the display scanner owns it.
		if start+1 < len(text) && text[start+1] == '$' {
			pos = start + 2
			continue
		}
		if start > 0 && text[start-1] == '$' {
			pos = start + 1
			continue
		}
		rest := text[start+1:]
		j := strings.IndexByte(rest, '$')
		if j < 0 {
			break
		}
		body := rest[:j]
		end := start + 1 + j + 1
		if body == "" || strings.ContainsRune(body, '\n') {
			pos = start + 1
			continue
		}
		out = append(out, candidate{
			Region: Region{Start: start, End: end, Kind: FormulaInline, Subkind: "dollar", Content: text[start:end]},
			prio:   prioMathInline,
		})
		pos = end
	}

	pos = 0
	for {
		i := strings.Index(text[pos:], `\(`)
		if i < 0 {
			break
		}
		start := pos + i
		j := strings.Index(text[start+2:], `\)`)
		if j < 0 {
			break
		}
		end := start + 2 + j + 2
		out = append(out, candidate{
			Region: Region{Start: start, End: end, Kind: FormulaInline, Subkind: "paren", Content: text[start:end]},
			prio:   prioMathInline,
		})
		pos = end
	}
	return out
}

// scanUnicodeMath reports runs of at least three consecutive Unicode
// math symbols (∑∫≤≥… — category Sm).
func scanUnicodeMath(text string) []candidate {
	var out []candidate
	runStart := -1
	runLen := 0
	for i, r := range text {
		if unicode.Is(unicode.Sm, r) {
			if runStart < 0 {
				runStart = i
				runLen = 0
			}
			runLen++
			continue
		}
		if runStart >= 0 && runLen >= 3 {
			out = append(out, candidate{
				Region: Region{Start: runStart, End: i, Kind: FormulaInline, Subkind: "unicode", Content: text[runStart:i]},
				prio:   prioUnicodeMath,
			})
		}
		runStart = -1
	}
	if runStart >= 0 && runLen >= 3 {
		out = append(out, candidate{
			Region: Region{Start: runStart, End: len(text), Kind: FormulaInline, Subkind: "unicode", Content: text[runStart:]},
			prio:   prioUnicodeMath,
		})
	}
	return out
}

// --- code scanners -----------------------------------------------------

// scanFencedCode finds ``` and ~~~ fenced blocks with an optional
// language tag on the opening fence.
func scanFencedCode(text string) []candidate {
	var out []candidate
	for _, fence := range []string{"```", "~~~"} {
		pos := 0
		for {
			i := strings.Index(text[pos:], fence)
			if i < 0 {
				break
			}
			start := pos + i
			// Language tag runs to end of the opening line.
			nl := strings.IndexByte(text[start:], '\n')
			if nl < 0 {
				break
			}
			lang := strings.TrimSpace(text[start+len(fence) : start+nl])
			j := strings.Index(text[start+nl:], fence)
			if j < 0 {
				break
			}
			end := start + nl + j + len(fence)
			out = append(out, candidate{
				Region: Region{Start: start, End: end, Kind: CodeBlock, Subkind: lang, Content: text[start:end]},
				prio:   prioCodeFenced,
			})
			pos = end
		}
	}
	return out
}

// scanIndentedCode finds blocks of at least two consecutive lines each
// prefixed by four spaces or a tab.
func scanIndentedCode(text string) []candidate {
	var out []candidate
	lines := strings.Split(text, "\n")

	offset := 0
	blockStart := -1
	blockEnd := 0
	blockLines := 0
	flush := func() {
		if blockStart >= 0 && blockLines >= 2 {
			out = append(out, candidate{
				Region: Region{Start: blockStart, End: blockEnd, Kind: CodeBlock, Subkind: "indented", Content: text[blockStart:blockEnd]},
				prio:   prioCodeIndented,
			})
		}
		blockStart = -1
		blockLines = 0
	}

	for _, line := range lines {
		indented := strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")
		if indented && strings.TrimSpace(line) != "" {
			if blockStart < 0 {
				blockStart = offset
			}
			blockEnd = offset + len(line)
			if blockEnd > len(text) {
				blockEnd = len(text)
			}
			blockLines++
		} else {
			flush()
		}
		offset += len(line) + 1
	}
	flush()
	return out
}

// scanInlineCode finds `...` spans and applies the acceptance heuristic:
// spans that merely quote English prose are not code.
func scanInlineCode(text string) []candidate {
	var out []candidate
	pos := 0
	for {
		i := strings.IndexByte(text[pos:], '`')
		if i < 0 {
			break
		}
		start := pos + i
		rest := text[start+1:]
		j := strings.IndexByte(rest, '`')
		if j < 0 {
			break
		}
		body := rest[:j]
		end := start + 1 + j + 1
		if body == "" || strings.ContainsRune(body, '\n') {
			pos = start + 1
			continue
		}
		if looksLikeCode(body) {
			out = append(out, candidate{
				Region: Region{Start: start, End: end, Kind: CodeInline, Subkind: "backtick", Content: text[start:end]},
				prio:   prioCodeInline,
			})
			pos = end
			continue
		}
		pos = end
	}
	return out
}

// looksLikeCode implements the inline-code acceptance heuristic.
func looksLikeCode(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || englishAbbreviations[trimmed] {
		return false
	}

	// Arrow operators and comparison operators.
	if strings.Contains(trimmed, "->") || strings.Contains(trimmed, "=>") ||
		strings.Contains(trimmed, "==") || strings.Contains(trimmed, "!=") {
		return true
	}

	// Function-call pattern: ident( ... ).
	if i := strings.IndexByte(trimmed, '('); i > 0 && strings.ContainsRune(trimmed, ')') {
		if isIdentifier(trimmed[:i]) {
			return true
		}
	}

	// snake_case with at least two underscores.
	if strings.Count(trimmed, "_") >= 2 {
		return true
	}

	// ALL_CAPS constants with underscores.
	if strings.ContainsRune(trimmed, '_') && trimmed == strings.ToUpper(trimmed) &&
		strings.IndexFunc(trimmed, unicode.IsLetter) >= 0 {
		return true
	}

	// camelCase: lowercase then uppercase transition within one word.
	if isCamelCase(trimmed) {
		return true
	}

	// Dot access: ident.ident (but not sentence-ending periods).
	if i := strings.IndexByte(trimmed, '.'); i > 0 && i < len(trimmed)-1 {
		if isIdentifier(trimmed[:i]) && isIdentifier(trimmed[i+1:]) {
			return true
		}
	}

	// Symbol density above 30%.
	symbols := 0
	for _, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			symbols++
		}
	}
	total := len([]rune(trimmed))
	return total > 0 && float64(symbols)/float64(total) > 0.3
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if unicode.IsLetter(r) || r == '_' {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func isCamelCase(s string) bool {
	if strings.ContainsRune(s, ' ') || !isIdentifier(s) {
		return false
	}
	prevLower := false
	for _, r := range s {
		if unicode.IsUpper(r) && prevLower {
			return true
		}
		prevLower = unicode.IsLower(r)
	}
	return false
}

// --- chemical scanner --------------------------------------------------

// scanChemical conservatively matches element-like tokens: length >= 2,
// at least one digit or chemistry bracket, at least two capitals, not
// blacklisted. Examples: H2SO4, Ca(OH)2, NaHCO3.
func scanChemical(text string) []candidate {
	var out []candidate
	n := len(text)
	i := 0
	for i < n {
		c := text[i]
		if c < 'A' || c > 'Z' {
			i++
			continue
		}
		// Extend over element letters, digits, and chemistry brackets.
		j := i
		for j < n {
			c := text[j]
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
				(c >= '0' && c <= '9') || c == '(' || c == ')' ||
				c == '[' || c == ']' {
				j++
				continue
			}
			break
		}
		token := text[i:j]
		if isChemicalFormula(token) {
			out = append(out, candidate{
				Region: Region{Start: i, End: j, Kind: Chemical, Subkind: "formula", Content: token},
				prio:   prioChemical,
			})
		}
		i = j + 1
	}
	return out
}

func isChemicalFormula(token string) bool {
	if len(token) < 2 || chemicalBlacklist[token] {
		return false
	}
	capitals, digits, brackets := 0, 0, 0
	for _, r := range token {
		switch {
		case r >= 'A' && r <= 'Z':
			capitals++
		case r >= '0' && r <= '9':
			digits++
		case r == '(' || r == ')' || r == '[' || r == ']':
			brackets++
		case r >= 'a' && r <= 'z':
			// element suffix letters
		default:
			return false
		}
	}
	if capitals < 2 {
		return false
	}
	return digits > 0 || brackets > 0
}
