package quality

import (
	"regexp"
	"strings"
	"unicode"
)

// LanguageRule checks target-language plausibility of a translation.
// It returns a score in [0,1] and may append warnings via warn.
type LanguageRule func(translated string, warn func(string, ...any)) float64

// Residual translator artifacts that must never survive into output.
var artifactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[CHUNK \d+\]`),
	regexp.MustCompile(`---START---|---END---`),
	regexp.MustCompile(`(?m)^\s*TODO\b`),
	regexp.MustCompile(`(?m)^\s*Note:`),
}

// scoreLanguage applies the per-language rule for the target language
// plus the artifact scan that applies to every language.
func (v *Validator) scoreLanguage(in Input, warn func(string, ...any)) float64 {
	score := 1.0
	for _, p := range artifactPatterns {
		if m := p.FindString(in.Translated); m != "" {
			warn("residual translator artifact %q in output", m)
			score -= 0.3
		}
	}

	if rule, ok := v.languages[in.TargetLang]; ok {
		score = minFloat(score, rule(in.Translated, warn))
	}
	return clamp01(score)
}

func builtinLanguageRules() map[string]LanguageRule {
	return map[string]LanguageRule{
		"vi": vietnameseRule,
		"zh": chineseRule,
		"ja": japaneseRule,
		"en": englishRule,
	}
}

var vietnameseFunctionWords = []string{
	"và", "của", "là", "có", "được", "các", "một", "trong", "cho", "không",
}

// vietnameseRule expects diacritics and common function words in any
// non-trivial Vietnamese text.
func vietnameseRule(translated string, warn func(string, ...any)) float64 {
	if len([]rune(translated)) < 20 {
		return 1.0
	}
	score := 1.0

	hasDiacritic := strings.ContainsAny(translated,
		"àáảãạăằắẳẵặâầấẩẫậèéẻẽẹêềếểễệìíỉĩịòóỏõọôồốổỗộơờớởỡợùúủũụưừứửữựỳýỷỹỵđ"+
			"ÀÁẢÃẠĂẰẮẲẴẶÂẦẤẨẪẬÈÉẺẼẸÊỀẾỂỄỆÌÍỈĨỊÒÓỎÕỌÔỒỐỔỖỘƠỜỚỞỠỢÙÚỦŨỤƯỪỨỬỮỰỲÝỶỸỴĐ")
	if !hasDiacritic {
		warn("no Vietnamese diacritics in translation")
		score -= 0.4
	}

	lower := strings.ToLower(translated)
	found := 0
	for _, w := range vietnameseFunctionWords {
		if strings.Contains(lower, w) {
			found++
		}
	}
	if found == 0 {
		warn("no common Vietnamese function words in translation")
		score -= 0.3
	}
	return clamp01(score)
}

// chineseRule expects a majority of Han characters.
func chineseRule(translated string, warn func(string, ...any)) float64 {
	return cjkRule(translated, warn, "Chinese", func(r rune) bool {
		return unicode.Is(unicode.Han, r)
	})
}

// japaneseRule accepts Han, Hiragana and Katakana.
func japaneseRule(translated string, warn func(string, ...any)) float64 {
	return cjkRule(translated, warn, "Japanese", func(r rune) bool {
		return unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r)
	})
}

func cjkRule(translated string, warn func(string, ...any), name string, in func(rune) bool) float64 {
	letters, native := 0, 0
	for _, r := range translated {
		if unicode.IsLetter(r) {
			letters++
			if in(r) {
				native++
			}
		}
	}
	if letters < 5 {
		return 1.0
	}
	frac := float64(native) / float64(letters)
	if frac < 0.3 {
		warn("translation does not look like %s (%.0f%% native script)", name, frac*100)
		return 0.3
	}
	if frac < 0.6 {
		return 0.7
	}
	return 1.0
}

var englishFunctionWords = []string{
	"the", "and", "of", "to", "in", "is", "that", "for", "with", "are",
}

func englishRule(translated string, warn func(string, ...any)) float64 {
	if len(translated) < 40 {
		return 1.0
	}
	lower := " " + strings.ToLower(translated) + " "
	found := 0
	for _, w := range englishFunctionWords {
		if strings.Contains(lower, " "+w+" ") {
			found++
		}
	}
	if found == 0 {
		warn("no common English function words in translation")
		return 0.4
	}
	if found < 2 {
		return 0.7
	}
	return 1.0
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
