// Package glossary holds enforced terminology for a translation job:
// source terms that must be rendered with a fixed target term.
package glossary

import (
	"fmt"
	"sort"
	"strings"
)

// Term maps a source-language term to its mandatory translation.
type Term struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Note   string `json:"note,omitempty"`
}

// Glossary is an ordered set of terms, matched case-insensitively.
type Glossary struct {
	terms   []Term
	byLower map[string]Term
}

// New builds a glossary from terms. Later duplicates of the same source
// term override earlier ones.
func New(terms []Term) *Glossary {
	g := &Glossary{byLower: make(map[string]Term, len(terms))}
	for _, t := range terms {
		t.Source = strings.TrimSpace(t.Source)
		t.Target = strings.TrimSpace(t.Target)
		if t.Source == "" || t.Target == "" {
			continue
		}
		key := strings.ToLower(t.Source)
		if _, seen := g.byLower[key]; !seen {
			g.terms = append(g.terms, t)
		} else {
			for i := range g.terms {
				if strings.EqualFold(g.terms[i].Source, t.Source) {
					g.terms[i] = t
					break
				}
			}
		}
		g.byLower[key] = t
	}
	return g
}

// Len returns the number of terms.
func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.terms)
}

// Terms returns the terms in load order.
func (g *Glossary) Terms() []Term {
	if g == nil {
		return nil
	}
	out := make([]Term, len(g.terms))
	copy(out, g.terms)
	return out
}

// Lookup returns the mandatory target for a source term.
func (g *Glossary) Lookup(source string) (Term, bool) {
	if g == nil {
		return Term{}, false
	}
	t, ok := g.byLower[strings.ToLower(strings.TrimSpace(source))]
	return t, ok
}

// PromptSection renders the glossary as instruction lines for the
// translation prompt. Terms relevant to text come first; the listing is
// capped so huge glossaries do not crowd out the chunk itself.
func (g *Glossary) PromptSection(text string, limit int) string {
	if g.Len() == 0 {
		return ""
	}
	if limit <= 0 {
		limit = 50
	}

	lower := strings.ToLower(text)
	var relevant, rest []Term
	for _, t := range g.terms {
		if strings.Contains(lower, strings.ToLower(t.Source)) {
			relevant = append(relevant, t)
		} else {
			rest = append(rest, t)
		}
	}
	picked := relevant
	if len(picked) < limit {
		picked = append(picked, rest[:minInt(limit-len(picked), len(rest))]...)
	} else {
		picked = picked[:limit]
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return strings.ToLower(picked[i].Source) < strings.ToLower(picked[j].Source)
	})

	var b strings.Builder
	b.WriteString("Mandatory terminology (source => target):\n")
	for _, t := range picked {
		fmt.Fprintf(&b, "- %s => %s\n", t.Source, t.Target)
	}
	return b.String()
}

// Violations reports glossary terms present in source whose mandatory
// target translation is missing from translated.
func (g *Glossary) Violations(source, translated string) []Term {
	if g.Len() == 0 {
		return nil
	}
	srcLower := strings.ToLower(source)
	dstLower := strings.ToLower(translated)

	var out []Term
	for _, t := range g.terms {
		if !strings.Contains(srcLower, strings.ToLower(t.Source)) {
			continue
		}
		if !strings.Contains(dstLower, strings.ToLower(t.Target)) {
			out = append(out, t)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
