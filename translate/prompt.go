package translate

import (
	"fmt"
	"strings"

	"github.com/minhngdo/doctran/chunker"
)

const (
	startMarker = "---START---"
	endMarker   = "---END---"

	// glossaryPromptCap bounds how many terms are listed per prompt.
	glossaryPromptCap = 50
)

// systemPrompt is the fixed instruction header for every chunk of a job.
func (t *Translator) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional translator. Translate from %s to %s.\n",
		languageName(t.cfg.SourceLang), languageName(t.cfg.TargetLang))
	if t.cfg.Domain != "" && t.cfg.Domain != "default" {
		fmt.Fprintf(&b, "The document domain is %s; use the field's standard terminology.\n", t.cfg.Domain)
	}
	b.WriteString("Preserve every token of the form ⟪STEM_...⟫ exactly as written; they stand for formulas and code.\n")
	b.WriteString("Translate only the text between " + startMarker + " and " + endMarker + ".\n")
	b.WriteString("Return only the translation, with no commentary and no markers.")
	return b.String()
}

// userPrompt assembles the per-chunk message: glossary, neighbour
// context labelled as reference-only, and the delimited source text.
func (t *Translator) userPrompt(ch chunker.Chunk, substituted string) string {
	var b strings.Builder

	if section := t.glossary.PromptSection(ch.Text, glossaryPromptCap); section != "" {
		b.WriteString(section)
		b.WriteString("\n")
	}
	if ch.ContextBefore != "" {
		b.WriteString("Preceding context (do not translate):\n")
		b.WriteString(ch.ContextBefore)
		b.WriteString("\n\n")
	}
	if ch.ContextAfter != "" {
		b.WriteString("Following context (do not translate):\n")
		b.WriteString(ch.ContextAfter)
		b.WriteString("\n\n")
	}

	b.WriteString(startMarker)
	b.WriteString("\n")
	b.WriteString(substituted)
	b.WriteString("\n")
	b.WriteString(endMarker)
	return b.String()
}

// extractPayload strips echoed markers from a provider response. Models
// occasionally repeat the delimiters despite instructions.
func extractPayload(raw string) string {
	out := raw
	if i := strings.Index(out, startMarker); i >= 0 {
		out = out[i+len(startMarker):]
	}
	if i := strings.Index(out, endMarker); i >= 0 {
		out = out[:i]
	}
	return strings.TrimSpace(out)
}

var languageNames = map[string]string{
	"en": "English",
	"vi": "Vietnamese",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
	"ru": "Russian",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
