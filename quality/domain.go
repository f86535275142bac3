package quality

import (
	"regexp"
	"strings"
)

// DomainRule enforces domain-critical properties of a translation.
type DomainRule func(in Input, warn func(string, ...any)) float64

// Profile couples a domain rule with the dimension weights used for
// aggregation. Weights sum to 1 per profile.
type Profile struct {
	Weights map[string]float64
	Rule    DomainRule
}

// Check runs the profile's domain rule.
func (p Profile) Check(in Input, warn func(string, ...any)) float64 {
	if p.Rule == nil {
		return 1.0
	}
	return p.Rule(in, warn)
}

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"default": {
			Weights: map[string]float64{
				dimLength: 0.20, dimCompleteness: 0.20, dimLanguage: 0.20,
				dimGlossary: 0.15, dimDomain: 0.15, dimPunctuation: 0.10,
			},
			Rule: func(Input, func(string, ...any)) float64 { return 1.0 },
		},
		"medical": {
			Weights: map[string]float64{
				dimLength: 0.10, dimCompleteness: 0.15, dimLanguage: 0.15,
				dimGlossary: 0.15, dimDomain: 0.35, dimPunctuation: 0.10,
			},
			Rule: medicalRule,
		},
		"finance": {
			Weights: map[string]float64{
				dimLength: 0.10, dimCompleteness: 0.15, dimLanguage: 0.15,
				dimGlossary: 0.10, dimDomain: 0.35, dimPunctuation: 0.15,
			},
			Rule: financeRule,
		},
		"technology": {
			Weights: map[string]float64{
				dimLength: 0.15, dimCompleteness: 0.15, dimLanguage: 0.15,
				dimGlossary: 0.20, dimDomain: 0.25, dimPunctuation: 0.10,
			},
			Rule: technologyRule,
		},
		"literature": {
			Weights: map[string]float64{
				dimLength: 0.20, dimCompleteness: 0.20, dimLanguage: 0.25,
				dimGlossary: 0.05, dimDomain: 0.20, dimPunctuation: 0.10,
			},
			Rule: literatureRule,
		},
	}
}

var (
	numberPattern   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	currencyPattern = regexp.MustCompile(`[$€£¥₫]|%`)
	fencePattern    = regexp.MustCompile("(?m)^```")
)

// medicalRule requires every number in the source (dosages, intervals,
// measurements) to survive into the translation. Losing one is a
// safety-critical defect.
func medicalRule(in Input, warn func(string, ...any)) float64 {
	numbers := numberPattern.FindAllString(in.Source, -1)
	if len(numbers) == 0 {
		return 1.0
	}
	preserved := 0
	for _, n := range numbers {
		if strings.Contains(in.Translated, n) {
			preserved++
		} else {
			warn("safety-critical: number %q missing from medical translation", n)
		}
	}
	return float64(preserved) / float64(len(numbers))
}

// financeRule requires numbers and currency glyphs to be preserved.
func financeRule(in Input, warn func(string, ...any)) float64 {
	score := 1.0

	numbers := numberPattern.FindAllString(in.Source, -1)
	if len(numbers) > 0 {
		preserved := 0
		for _, n := range numbers {
			if strings.Contains(in.Translated, n) {
				preserved++
			} else {
				warn("financial figure %q missing from translation", n)
			}
		}
		score = float64(preserved) / float64(len(numbers))
	}

	srcCurrency := len(currencyPattern.FindAllString(in.Source, -1))
	dstCurrency := len(currencyPattern.FindAllString(in.Translated, -1))
	if srcCurrency > 0 && dstCurrency < srcCurrency {
		warn("currency symbols dropped (%d in source, %d in translation)", srcCurrency, dstCurrency)
		score -= 0.2
	}
	return clamp01(score)
}

// technologyRule requires code fences and inline backtick spans to
// survive untouched.
func technologyRule(in Input, warn func(string, ...any)) float64 {
	score := 1.0

	srcFences := len(fencePattern.FindAllString(in.Source, -1))
	dstFences := len(fencePattern.FindAllString(in.Translated, -1))
	if srcFences != dstFences {
		warn("code fence count changed (%d -> %d)", srcFences, dstFences)
		score -= 0.4
	}

	srcTicks := strings.Count(in.Source, "`") - srcFences*3
	dstTicks := strings.Count(in.Translated, "`") - dstFences*3
	if srcTicks > 0 && dstTicks != srcTicks {
		warn("inline backtick count changed (%d -> %d)", srcTicks, dstTicks)
		score -= 0.3
	}
	return clamp01(score)
}

// literatureRule checks that quotation marks and paragraph shape
// survive; literary structure is part of the meaning.
func literatureRule(in Input, warn func(string, ...any)) float64 {
	score := 1.0

	srcQuotes := countQuotes(in.Source)
	dstQuotes := countQuotes(in.Translated)
	if srcQuotes > 0 && dstQuotes == 0 {
		warn("dialogue quotation marks dropped")
		score -= 0.3
	}

	srcParas := strings.Count(in.Source, "\n\n")
	dstParas := strings.Count(in.Translated, "\n\n")
	if srcParas > 0 && dstParas == 0 {
		warn("paragraph breaks collapsed")
		score -= 0.3
	}
	return clamp01(score)
}

func countQuotes(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case '"', '“', '”', '«', '»', '„':
			n++
		}
	}
	return n
}
