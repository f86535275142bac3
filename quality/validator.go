// Package quality scores (source, translated) pairs. The validator is
// pure: it inspects the two texts, an optional glossary and a domain
// profile, and produces a composite score in [0,1] plus warnings. It
// never performs I/O.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/minhngdo/doctran/glossary"
)

// Score thresholds used by callers to drive retries and caching.
const (
	// RetryBelow marks a translation bad enough to round-trip again.
	RetryBelow = 0.5
	// CacheAbove marks a translation good enough to persist.
	CacheAbove = 0.7
)

// Input is one validation request.
type Input struct {
	Source     string
	Translated string
	SourceLang string
	TargetLang string
	Domain     string
	Glossary   *glossary.Glossary
}

// Report is the validator's verdict.
type Report struct {
	Score      float64            `json:"score"`
	Dimensions map[string]float64 `json:"dimensions"`
	Warnings   []string           `json:"warnings"`
}

// Dimension names, used as keys in Report.Dimensions and in profiles.
const (
	dimLength       = "length"
	dimCompleteness = "completeness"
	dimLanguage     = "language"
	dimGlossary     = "glossary"
	dimDomain       = "domain"
	dimPunctuation  = "punctuation"
)

// Validator scores translations using pluggable language rules and
// domain profiles.
type Validator struct {
	languages map[string]LanguageRule
	profiles  map[string]Profile
}

// NewValidator returns a validator with the built-in language rules
// (Vietnamese, Chinese, Japanese, English) and domain profiles.
func NewValidator() *Validator {
	return &Validator{
		languages: builtinLanguageRules(),
		profiles:  builtinProfiles(),
	}
}

// RegisterLanguage adds or replaces the rule for a language code.
func (v *Validator) RegisterLanguage(code string, rule LanguageRule) {
	v.languages[code] = rule
}

// RegisterProfile adds or replaces a domain profile.
func (v *Validator) RegisterProfile(domain string, p Profile) {
	v.profiles[domain] = p
}

// Validate scores one pair. Unknown domains fall back to the default
// profile; unknown target languages skip the language dimension's
// specific checks but still flag residual translator artifacts.
func (v *Validator) Validate(in Input) Report {
	profile, ok := v.profiles[in.Domain]
	if !ok {
		profile = v.profiles["default"]
	}

	report := Report{Dimensions: make(map[string]float64, 6)}
	warn := func(format string, args ...any) {
		report.Warnings = append(report.Warnings, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(in.Translated) == "" && strings.TrimSpace(in.Source) != "" {
		warn("translation is empty")
		return report
	}

	report.Dimensions[dimLength] = v.scoreLength(in, warn)
	report.Dimensions[dimCompleteness] = v.scoreCompleteness(in, warn)
	report.Dimensions[dimLanguage] = v.scoreLanguage(in, warn)
	report.Dimensions[dimGlossary] = v.scoreGlossary(in, warn)
	report.Dimensions[dimDomain] = profile.Check(in, warn)
	report.Dimensions[dimPunctuation] = v.scorePunctuation(in)

	var total float64
	for dim, weight := range profile.Weights {
		total += weight * report.Dimensions[dim]
	}
	report.Score = clamp01(total)
	return report
}

// ---------------------------------------------------------------------------
// dimension scoring
// ---------------------------------------------------------------------------

// expansionRange is the optimal target/source length band for a
// language pair.
type expansionRange struct {
	lo, hi float64
}

var expansionRanges = map[string]expansionRange{
	"en-vi": {1.1, 1.5},
	"en-zh": {0.4, 0.9},
	"en-ja": {0.5, 1.1},
	"vi-en": {0.7, 1.0},
	"en-fr": {1.0, 1.3},
	"en-de": {1.0, 1.35},
}

var defaultExpansion = expansionRange{0.8, 1.5}

func pairRange(src, tgt string) expansionRange {
	if r, ok := expansionRanges[src+"-"+tgt]; ok {
		return r
	}
	return defaultExpansion
}

func (v *Validator) scoreLength(in Input, warn func(string, ...any)) float64 {
	srcLen := uniseg.GraphemeClusterCount(in.Source)
	dstLen := uniseg.GraphemeClusterCount(in.Translated)
	if srcLen == 0 {
		return 1.0
	}
	if dstLen == 0 {
		warn("translation is empty")
		return 0.0
	}

	ratio := float64(dstLen) / float64(srcLen)
	r := pairRange(in.SourceLang, in.TargetLang)
	switch {
	case ratio >= r.lo && ratio <= r.hi:
		return 1.0
	case ratio >= r.lo*0.7 && ratio <= r.hi*1.3:
		return 0.7
	default:
		warn("length ratio %.2f outside expected range [%.2f, %.2f]", ratio, r.lo, r.hi)
		return 0.3
	}
}

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

func (v *Validator) scoreCompleteness(in Input, warn func(string, ...any)) float64 {
	srcSentences := countSentences(in.Source)
	dstSentences := countSentences(in.Translated)
	if srcSentences == 0 {
		return 1.0
	}
	if dstSentences == 0 {
		warn("translation has no sentence delimiters")
		return 0.3
	}

	ratio := float64(dstSentences) / float64(srcSentences)
	switch {
	case ratio >= 0.8 && ratio <= 1.2:
		return 1.0
	case ratio >= 0.6 && ratio <= 1.4:
		return 0.7
	default:
		warn("sentence count ratio %.2f suggests missing or split content", ratio)
		return 0.3
	}
}

func countSentences(text string) int {
	return len(sentenceEnd.FindAllString(text, -1))
}

func (v *Validator) scoreGlossary(in Input, warn func(string, ...any)) float64 {
	if in.Glossary.Len() == 0 {
		return 1.0
	}

	applicable := 0
	srcLower := strings.ToLower(in.Source)
	for _, t := range in.Glossary.Terms() {
		if strings.Contains(srcLower, strings.ToLower(t.Source)) {
			applicable++
		}
	}
	if applicable == 0 {
		return 1.0
	}

	violations := in.Glossary.Violations(in.Source, in.Translated)
	for _, t := range violations {
		warn("glossary term %q not rendered as %q", t.Source, t.Target)
	}
	return float64(applicable-len(violations)) / float64(applicable)
}

var (
	acronymPattern    = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	hardPunctuation   = regexp.MustCompile(`[.!?:;]`)
	capitalisedTokens = regexp.MustCompile(`\b[A-Z][a-z]+`)
)

// scorePunctuation compares hard punctuation counts, preserved acronyms
// and capitalised-token counts. It is a soft signal and never warns.
func (v *Validator) scorePunctuation(in Input) float64 {
	score := 1.0

	srcPunct := len(hardPunctuation.FindAllString(in.Source, -1))
	dstPunct := len(hardPunctuation.FindAllString(in.Translated, -1))
	if srcPunct > 0 {
		ratio := float64(dstPunct) / float64(srcPunct)
		if ratio < 0.5 || ratio > 2.0 {
			score -= 0.3
		}
	}

	for _, ac := range acronymPattern.FindAllString(in.Source, -1) {
		if !strings.Contains(in.Translated, ac) {
			score -= 0.15
		}
	}

	srcCaps := len(capitalisedTokens.FindAllString(in.Source, -1))
	dstCaps := len(capitalisedTokens.FindAllString(in.Translated, -1))
	if srcCaps > 3 && dstCaps == 0 && isLatinScript(in.TargetLang) {
		score -= 0.2
	}

	return clamp01(score)
}

func isLatinScript(lang string) bool {
	switch lang {
	case "zh", "ja", "ko", "th", "ar", "he", "ru":
		return false
	default:
		return true
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
