package protect

import (
	"strings"
	"testing"
)

func detect(t *testing.T, text string) []Region {
	t.Helper()
	return NewDetector().Detect(text)
}

func kinds(regions []Region) []Kind {
	out := make([]Kind, len(regions))
	for i, r := range regions {
		out[i] = r.Kind
	}
	return out
}

// ---------------------------------------------------------------------------
// Formula detection
// ---------------------------------------------------------------------------

func TestDetectInlineDollarMath(t *testing.T) {
	regions := detect(t, "The equation $E=mc^2$ is famous.")
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d: %+v", len(regions), regions)
	}
	r := regions[0]
	if r.Kind != FormulaInline {
		t.Errorf("kind = %s, want %s", r.Kind, FormulaInline)
	}
	if r.Content != "$E=mc^2$" {
		t.Errorf("content = %q, want %q", r.Content, "$E=mc^2$")
	}
}

func TestDetectDisplayMath(t *testing.T) {
	text := "Before\n$$\\int_0^1 x\\,dx = \\frac{1}{2}$$\nafter."
	regions := detect(t, text)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d: %+v", len(regions), regions)
	}
	if regions[0].Kind != FormulaBlock {
		t.Errorf("kind = %s, want %s", regions[0].Kind, FormulaBlock)
	}
}

func TestDisplayMathWinsOverInline(t *testing.T) {
	// $$...$$ must not additionally yield inner $...$ matches.
	regions := detect(t, "x $$a=b$$ y")
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d: %+v", len(regions), regions)
	}
	if regions[0].Content != "$$a=b$$" {
		t.Errorf("content = %q, want $$a=b$$", regions[0].Content)
	}
}

func TestDetectLatexEnvironments(t *testing.T) {
	tests := []struct {
		name string
		text string
		env  string
	}{
		{"equation", `\begin{equation}a=b\end{equation}`, "equation"},
		{"align star", `\begin{align*}x &= y\\ y &= z\end{align*}`, "align*"},
		{"cases", `\begin{cases}1 & x>0\\0 & x\le 0\end{cases}`, "cases"},
		{"pmatrix", `\begin{pmatrix}1&0\\0&1\end{pmatrix}`, "pmatrix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions := detect(t, "Consider "+tt.text+" here.")
			if len(regions) != 1 {
				t.Fatalf("expected 1 region, got %d: %+v", len(regions), regions)
			}
			r := regions[0]
			if r.Kind != FormulaBlock {
				t.Errorf("kind = %s, want %s", r.Kind, FormulaBlock)
			}
			if r.Subkind != tt.env {
				t.Errorf("subkind = %q, want %q", r.Subkind, tt.env)
			}
			if r.Content != tt.text {
				t.Errorf("content = %q, want %q", r.Content, tt.text)
			}
		})
	}
}

func TestUnknownEnvironmentIgnored(t *testing.T) {
	regions := detect(t, `\begin{figure}not math\end{figure}`)
	if len(regions) != 0 {
		t.Fatalf("expected no regions, got %+v", regions)
	}
}

func TestBracketDelimiters(t *testing.T) {
	regions := detect(t, `Inline \(a+b\) and display \[c=d\] forms.`)
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d: %+v", len(regions), regions)
	}
	if regions[0].Kind != FormulaInline || regions[1].Kind != FormulaBlock {
		t.Errorf("kinds = %v", kinds(regions))
	}
}

func TestLongFormulaTerminates(t *testing.T) {
	// Guards against pathological scanning on long display formulas.
	long := "$$" + strings.Repeat(`\alpha_{i,j} + `, 5000) + "$$"
	regions := detect(t, long)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region on long formula, got %d", len(regions))
	}
}

func TestUnicodeMathRun(t *testing.T) {
	regions := detect(t, "we have ∀x∈A ∑≤∫±√ in the set")
	if len(regions) == 0 {
		t.Fatal("expected a unicode math region")
	}
	// Fewer than three consecutive symbols must not match.
	none := detect(t, "roughly ± two")
	if len(none) != 0 {
		t.Errorf("expected no regions for a single symbol, got %+v", none)
	}
}

// ---------------------------------------------------------------------------
// Code detection
// ---------------------------------------------------------------------------

func TestDetectFencedCode(t *testing.T) {
	text := "Intro.\n```python\nprint('hi')\n```\nOutro."
	regions := detect(t, text)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d: %+v", len(regions), regions)
	}
	r := regions[0]
	if r.Kind != CodeBlock {
		t.Errorf("kind = %s, want %s", r.Kind, CodeBlock)
	}
	if r.Subkind != "python" {
		t.Errorf("language tag = %q, want python", r.Subkind)
	}
}

func TestDetectTildeFence(t *testing.T) {
	text := "~~~\nlet x = 1;\n~~~"
	regions := detect(t, text)
	if len(regions) != 1 || regions[0].Kind != CodeBlock {
		t.Fatalf("expected one code block, got %+v", regions)
	}
}

func TestDetectIndentedCode(t *testing.T) {
	text := "Example:\n    x = compute()\n    return x\ndone."
	regions := detect(t, text)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d: %+v", len(regions), regions)
	}
	if regions[0].Subkind != "indented" {
		t.Errorf("subkind = %q, want indented", regions[0].Subkind)
	}
}

func TestSingleIndentedLineNotCode(t *testing.T) {
	regions := detect(t, "List:\n    just one indented line\nend.")
	if len(regions) != 0 {
		t.Errorf("one indented line must not match, got %+v", regions)
	}
}

func TestInlineCodeHeuristic(t *testing.T) {
	tests := []struct {
		name string
		span string
		want bool
	}{
		{"snake case", "max_retry_count", true},
		{"camel case", "getUserName", true},
		{"function call", "compute(x, y)", true},
		{"arrow", "a -> b", true},
		{"comparison", "x == y", true},
		{"all caps const", "MAX_SIZE", true},
		{"dot access", "config.timeout", true},
		{"plain word", "hello", false},
		{"abbreviation", "e.g.", false},
		{"prose", "just some words", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions := detect(t, "Use `"+tt.span+"` here.")
			got := len(regions) == 1 && regions[0].Kind == CodeInline
			if got != tt.want {
				t.Errorf("looksLikeCode(%q) accepted=%v, want %v", tt.span, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Chemical detection
// ---------------------------------------------------------------------------

func TestDetectChemicalFormulas(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Dissolve H2SO4 slowly.", true},
		{"Add Ca(OH)2 to the mix.", true},
		{"NaHCO3 neutralises acid.", true},
		{"Chemistry is fun.", false},
		{"The CO level rose.", false}, // no digit or bracket
		{"USA is a country.", false},
	}
	for _, tt := range tests {
		regions := detect(t, tt.text)
		found := false
		for _, r := range regions {
			if r.Kind == Chemical {
				found = true
			}
		}
		if found != tt.want {
			t.Errorf("Detect(%q) chemical=%v, want %v (%+v)", tt.text, found, tt.want, regions)
		}
	}
}

// ---------------------------------------------------------------------------
// Overlap resolution and general invariants
// ---------------------------------------------------------------------------

func TestRegionsSortedAndDisjoint(t *testing.T) {
	text := "Mix $a+b$ with ```\ncode()\n``` and H2O2 then \\[x\\] done " +
		"`snake_case_name` and $$display$$ end."
	regions := detect(t, text)
	for i := 1; i < len(regions); i++ {
		if regions[i].Start < regions[i-1].End {
			t.Fatalf("regions overlap or unsorted: %+v", regions)
		}
	}
	for _, r := range regions {
		if text[r.Start:r.End] != r.Content {
			t.Errorf("content mismatch at [%d,%d)", r.Start, r.End)
		}
	}
}

func TestFencedCodeWinsOverInlineMath(t *testing.T) {
	text := "```\nprice = $100 + $200\n```"
	regions := detect(t, text)
	if len(regions) != 1 || regions[0].Kind != CodeBlock {
		t.Fatalf("fence must swallow inner dollars, got %+v", regions)
	}
}

func TestEmptyAndPlainInput(t *testing.T) {
	if got := detect(t, ""); len(got) != 0 {
		t.Errorf("empty input: got %+v", got)
	}
	if got := detect(t, "Plain English sentence, nothing special."); len(got) != 0 {
		t.Errorf("plain input: got %+v", got)
	}
}
