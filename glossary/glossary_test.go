package glossary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLookupCaseInsensitive(t *testing.T) {
	g := New([]Term{
		{Source: "neural network", Target: "mạng nơ-ron"},
		{Source: "Gradient Descent", Target: "hạ gradient"},
	})
	if g.Len() != 2 {
		t.Fatalf("len = %d, want 2", g.Len())
	}
	term, ok := g.Lookup("Neural Network")
	if !ok || term.Target != "mạng nơ-ron" {
		t.Errorf("lookup = %+v ok=%v", term, ok)
	}
	if _, ok := g.Lookup("unknown term"); ok {
		t.Error("unexpected hit for unknown term")
	}
}

func TestDuplicateSourceOverrides(t *testing.T) {
	g := New([]Term{
		{Source: "cache", Target: "old"},
		{Source: "Cache", Target: "bộ nhớ đệm"},
	})
	if g.Len() != 1 {
		t.Fatalf("len = %d, want 1", g.Len())
	}
	term, _ := g.Lookup("cache")
	if term.Target != "bộ nhớ đệm" {
		t.Errorf("target = %q, later entry must win", term.Target)
	}
}

func TestPromptSectionPrefersRelevantTerms(t *testing.T) {
	g := New([]Term{
		{Source: "entropy", Target: "entropy"},
		{Source: "enzyme", Target: "enzym"},
	})
	section := g.PromptSection("The enzyme catalyses the reaction.", 1)
	if !strings.Contains(section, "enzyme => enzym") {
		t.Errorf("relevant term missing:\n%s", section)
	}
	if strings.Contains(section, "entropy") {
		t.Errorf("irrelevant term crowded in:\n%s", section)
	}
}

func TestPromptSectionEmptyGlossary(t *testing.T) {
	g := New(nil)
	if s := g.PromptSection("anything", 10); s != "" {
		t.Errorf("empty glossary produced %q", s)
	}
}

func TestViolations(t *testing.T) {
	g := New([]Term{
		{Source: "myocardial infarction", Target: "nhồi máu cơ tim"},
		{Source: "stent", Target: "stent"},
	})

	src := "The patient suffered a myocardial infarction and received a stent."
	good := "Bệnh nhân bị nhồi máu cơ tim và được đặt stent."
	if v := g.Violations(src, good); len(v) != 0 {
		t.Errorf("compliant translation flagged: %+v", v)
	}

	bad := "Bệnh nhân bị đau tim và được đặt stent."
	v := g.Violations(src, bad)
	if len(v) != 1 || v[0].Source != "myocardial infarction" {
		t.Errorf("violations = %+v, want the missing term", v)
	}

	// Terms absent from the source are never violations.
	if v := g.Violations("Nothing medical here.", "Không có gì."); len(v) != 0 {
		t.Errorf("unused terms flagged: %+v", v)
	}
}

func TestLoadCSVAndTSV(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "terms.csv")
	csvBody := "source,target,note\nneural network,mạng nơ-ron,ml\nbackpropagation,lan truyền ngược,\n"
	if err := os.WriteFile(csvPath, []byte(csvBody), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadFile(csvPath)
	if err != nil {
		t.Fatalf("loading csv: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("csv len = %d, want 2", g.Len())
	}
	if term, _ := g.Lookup("neural network"); term.Note != "ml" {
		t.Errorf("note = %q, want ml", term.Note)
	}

	tsvPath := filepath.Join(dir, "terms.tsv")
	tsvBody := "photosynthesis\tquang hợp\nmitosis\tnguyên phân\n"
	if err := os.WriteFile(tsvPath, []byte(tsvBody), 0644); err != nil {
		t.Fatal(err)
	}
	g, err = LoadFile(tsvPath)
	if err != nil {
		t.Fatalf("loading tsv: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("tsv len = %d, want 2", g.Len())
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := LoadFile("terms.docx"); err == nil {
		t.Error("expected an error for unsupported extension")
	}
}
