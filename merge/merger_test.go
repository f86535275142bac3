package merge

import (
	"strings"
	"testing"

	"github.com/minhngdo/doctran/translate"
)

func TestMergeEmpty(t *testing.T) {
	if got := New(Config{}).Merge(nil); got != "" {
		t.Errorf("merge of nothing = %q", got)
	}
}

func TestMergeSingleChunk(t *testing.T) {
	m := New(Config{})
	got := m.Merge([]translate.Result{{ChunkID: 0, Translated: "Only one chunk."}})
	if got != "Only one chunk." {
		t.Errorf("got %q", got)
	}
}

func TestMergeKeepsDistinctChunksIntact(t *testing.T) {
	// No overlap anywhere: nothing may be cut.
	m := New(Config{SourceLang: "en", TargetLang: "vi"})
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "The first part of the document ends cleanly."},
		{ChunkID: 1, Translated: "Something entirely different follows in part two."},
	})
	want := "The first part of the document ends cleanly.\n\nSomething entirely different follows in part two."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestMergeSortsByChunkID(t *testing.T) {
	m := New(Config{})
	got := m.Merge([]translate.Result{
		{ChunkID: 2, Translated: "Third piece arrives."},
		{ChunkID: 0, Translated: "First piece opens."},
		{ChunkID: 1, Translated: "Second piece continues."},
	})
	wantOrder := []string{"First piece", "Second piece", "Third piece"}
	last := -1
	for _, w := range wantOrder {
		i := strings.Index(got, w)
		if i <= last {
			t.Fatalf("order wrong in %q", got)
		}
		last = i
	}
}

func TestMergeCutsDeclaredOverlap(t *testing.T) {
	// The second chunk repeats the first chunk's last paragraph and
	// declares the repeated length; the estimate cut drops it.
	overlap := "Shared tail paragraph here."
	m := New(Config{SourceLang: "en", TargetLang: "en"})
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "Alpha beta gamma.\n\n" + overlap},
		{ChunkID: 1, Translated: overlap + " New content follows after.",
			OverlapChars: len(overlap) + 2},
	})
	want := "Alpha beta gamma.\n\n" + overlap + "\n\nNew content follows after."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	if strings.Count(got, overlap) != 1 {
		t.Errorf("overlap repeated in %q", got)
	}
}

func TestMergeWordOverlapCut(t *testing.T) {
	m := New(Config{})
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "He saw the quick brown fox."},
		{ChunkID: 1, Translated: "brown fox. Then it ran away."},
	})
	want := "He saw the quick brown fox.\n\nThen it ran away."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestMergeCharOverlapFallback(t *testing.T) {
	// A single long token cannot match at word level (two words
	// minimum) but the raw suffix/prefix scan catches it.
	token := "abcdefghijklmnopqrstuvwxyz"
	m := New(Config{})
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "prefix text " + token},
		{ChunkID: 1, Translated: token + " and more text."},
	})
	if strings.Count(got, token) != 1 {
		t.Errorf("token duplicated in %q", got)
	}
	if !strings.Contains(got, "and more text.") {
		t.Errorf("tail lost from %q", got)
	}
}

func TestMergeCommonSubstringCut(t *testing.T) {
	// Duplicate sentence preceded by an artifact, so neither the word
	// nor the char pass lines up; the substring pass still finds it.
	dup := "The common duplicated sentence appears here at the end."
	m := New(Config{})
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "Intro. " + dup},
		{ChunkID: 1, Translated: "zq " + dup + " Fresh content."},
	})
	if strings.Count(got, dup) != 1 {
		t.Errorf("duplicate sentence survived in %q", got)
	}
	if !strings.Contains(got, "Fresh content.") {
		t.Errorf("new content lost from %q", got)
	}
}

func TestMergeSeparatorRules(t *testing.T) {
	m := New(Config{})

	// Sentence end meeting an uppercase start gets a paragraph break.
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "A full sentence ends."},
		{ChunkID: 1, Translated: "Another one begins."},
	})
	if got != "A full sentence ends.\n\nAnother one begins." {
		t.Errorf("got %q", got)
	}

	// A chunk cut mid-sentence joins with a single space.
	got = m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "This sentence was split in"},
		{ChunkID: 1, Translated: "the middle by chunking."},
	})
	if got != "This sentence was split in the middle by chunking." {
		t.Errorf("got %q", got)
	}
}

func TestPostProcessing(t *testing.T) {
	m := New(Config{})
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "  [CHUNK 3] Some  text   with runs.\n\n\n\nNext paragraph. "},
	})
	if strings.Contains(got, "[CHUNK") {
		t.Errorf("chunk marker survived: %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("space run survived: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank line run survived: %q", got)
	}
	if strings.HasPrefix(got, " ") || strings.HasSuffix(got, " ") {
		t.Errorf("untrimmed output: %q", got)
	}
	if !strings.Contains(got, "Some text with runs.\n\nNext paragraph.") {
		t.Errorf("got %q", got)
	}
}

func TestMergeIsStableOnRepeat(t *testing.T) {
	// Merging the same non-overlapping inputs twice gives the same
	// output; no strategy fires spuriously.
	m := New(Config{})
	in := []translate.Result{
		{ChunkID: 0, Translated: "Paragraph one talks about thermodynamics."},
		{ChunkID: 1, Translated: "Paragraph two covers information theory."},
		{ChunkID: 2, Translated: "Paragraph three closes the survey."},
	}
	first := m.Merge(in)
	second := m.Merge(in)
	if first != second {
		t.Errorf("merge not deterministic:\n%q\n%q", first, second)
	}
	for _, want := range []string{"thermodynamics", "information theory", "closes the survey"} {
		if !strings.Contains(first, want) {
			t.Errorf("%q missing from %q", want, first)
		}
	}
}

func TestExpansionFactorClampsToHalf(t *testing.T) {
	// A wildly overstated overlap may cut at most half of the chunk.
	m := New(Config{SourceLang: "en", TargetLang: "vi"})
	next := "Short chunk with a handful of words only."
	got := m.Merge([]translate.Result{
		{ChunkID: 0, Translated: "Lead-in text."},
		{ChunkID: 1, Translated: next, OverlapChars: 10000},
	})
	if !strings.Contains(got, "words only.") {
		t.Errorf("clamp failed, tail lost: %q", got)
	}
}
