package translate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minhngdo/doctran/chunker"
	"github.com/minhngdo/doctran/tm"
)

// prefixProvider echoes the delimited payload back with a "TR: " prefix,
// preserving sentinels verbatim.
type prefixProvider struct {
	calls int
}

func (p *prefixProvider) Translate(_ context.Context, _, user string) (string, error) {
	p.calls++
	return "TR: " + extractPayload(user), nil
}

type fixedProvider struct {
	out   string
	err   error
	calls int
}

func (p *fixedProvider) Translate(context.Context, string, string) (string, error) {
	p.calls++
	return p.out, p.err
}

func newTestMemory(t *testing.T) *tm.Store {
	t.Helper()
	s, err := tm.New(filepath.Join(t.TempDir(), "tm.db"))
	if err != nil {
		t.Fatalf("creating tm store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFormulaSurvivesTranslation(t *testing.T) {
	provider := &prefixProvider{}
	tr := New(provider, Config{SourceLang: "en", TargetLang: "en"})

	ch := chunker.Chunk{ID: 0, Text: "The equation $E=mc^2$ is famous."}
	res, err := tr.TranslateChunk(context.Background(), ch)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if res.Translated != "TR: The equation $E=mc^2$ is famous." {
		t.Errorf("translated = %q", res.Translated)
	}
	for _, w := range res.Warnings {
		if strings.Contains(w, "lost") || strings.Contains(w, "preservation") {
			t.Errorf("unexpected preservation warning: %q", w)
		}
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestSentinelHiddenFromProvider(t *testing.T) {
	var sawUser string
	capture := providerFunc(func(_ context.Context, _, user string) (string, error) {
		sawUser = user
		return "TR: " + extractPayload(user), nil
	})
	tr := New(capture, Config{SourceLang: "en", TargetLang: "en"})

	_, err := tr.TranslateChunk(context.Background(), chunker.Chunk{
		ID: 0, Text: "Solve $x^2+1=0$ for x.",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if strings.Contains(sawUser, "$x^2+1=0$") {
		t.Error("raw formula leaked into the provider prompt")
	}
	if !strings.Contains(sawUser, "⟪STEM_") {
		t.Error("sentinel missing from the provider prompt")
	}
	if !strings.Contains(sawUser, startMarker) || !strings.Contains(sawUser, endMarker) {
		t.Error("prompt missing payload delimiters")
	}
}

type providerFunc func(ctx context.Context, system, user string) (string, error)

func (f providerFunc) Translate(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

func TestLowQualityRetriesThenAcceptsLast(t *testing.T) {
	provider := &fixedProvider{out: ""}
	tr := New(provider, Config{SourceLang: "en", TargetLang: "vi", QualityRetries: 3})

	res, err := tr.TranslateChunk(context.Background(), chunker.Chunk{
		ID: 0, Text: "A long and detailed paragraph about thermodynamics and entropy in closed systems.",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3 quality round-trips", provider.calls)
	}
	if res.Quality >= 0.5 {
		t.Errorf("quality = %v, want the low score of the accepted last attempt", res.Quality)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected warnings on a low-quality result")
	}
}

func TestProviderErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	provider := &fixedProvider{err: wantErr}
	tr := New(provider, Config{SourceLang: "en", TargetLang: "vi"})

	_, err := tr.TranslateChunk(context.Background(), chunker.Chunk{ID: 0, Text: "text"})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want the provider failure", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, provider errors are the dispatcher's to retry", provider.calls)
	}
}

func TestExactMemoryHitSkipsProvider(t *testing.T) {
	memory := newTestMemory(t)
	ctx := context.Background()

	src := "Photosynthesis converts light into chemical energy."
	if _, err := memory.Insert(ctx, tm.Entry{
		SourceText: src, TargetText: "Quang hợp chuyển ánh sáng thành năng lượng hóa học.",
		SourceLang: "en", TargetLang: "vi", QualityScore: 0.92,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	provider := &fixedProvider{out: "should not be called"}
	tr := New(provider, Config{SourceLang: "en", TargetLang: "vi"}, WithMemory(memory))

	res, err := tr.TranslateChunk(ctx, chunker.Chunk{ID: 3, Text: src, OverlapChars: 17})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 on an exact hit", provider.calls)
	}
	if res.MatchType != "exact" || res.Quality != 0.92 {
		t.Errorf("result = %+v", res)
	}
	if res.OverlapChars != 17 {
		t.Errorf("overlap chars = %d, must be propagated", res.OverlapChars)
	}
}

func TestFuzzyMemoryHitScalesQuality(t *testing.T) {
	memory := newTestMemory(t)
	ctx := context.Background()

	if _, err := memory.Insert(ctx, tm.Entry{
		SourceText: "The patient should take the medication twice daily with food.",
		TargetText: "Bệnh nhân nên uống thuốc hai lần mỗi ngày cùng thức ăn.",
		SourceLang: "en", TargetLang: "vi", QualityScore: 0.9,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	provider := &fixedProvider{out: "unused"}
	tr := New(provider, Config{SourceLang: "en", TargetLang: "vi", FuzzyThreshold: 0.7}, WithMemory(memory))

	res, err := tr.TranslateChunk(ctx, chunker.Chunk{
		ID: 0, Text: "The patient should take the medication once daily with food.",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 on a fuzzy hit", provider.calls)
	}
	if res.MatchType != "fuzzy" {
		t.Errorf("match type = %q, want fuzzy", res.MatchType)
	}
	if res.Quality >= 0.9 {
		t.Errorf("quality = %v, must be scaled down by similarity", res.Quality)
	}
}

// mappedEmbedder returns fixed vectors keyed by text, zero vectors
// otherwise, so semantic lookup runs without a model endpoint.
type mappedEmbedder map[string][]float32

func (e mappedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		if v, ok := e[txt]; ok {
			out[i] = v
		} else {
			out[i] = make([]float32, 4)
		}
	}
	return out, nil
}

func TestSemanticMemoryHitSkipsProvider(t *testing.T) {
	ctx := context.Background()
	stored := "Velocity increases under constant acceleration."
	query := "Speed grows when pushed steadily."

	emb := mappedEmbedder{
		stored: {1, 0, 0, 0},
		query:  {1, 0, 0, 0},
	}
	memory, err := tm.New(filepath.Join(t.TempDir(), "tm.db"), tm.WithEmbedder(emb, 4))
	if err != nil {
		t.Fatalf("creating tm store: %v", err)
	}
	t.Cleanup(func() { memory.Close() })

	if _, err := memory.Insert(ctx, tm.Entry{
		SourceText: stored, TargetText: "Vận tốc tăng dưới gia tốc không đổi.",
		SourceLang: "en", TargetLang: "vi", QualityScore: 0.9,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	provider := &fixedProvider{out: "unused"}
	tr := New(provider, Config{SourceLang: "en", TargetLang: "vi", FuzzyThreshold: 0.75}, WithMemory(memory))

	// The paraphrase shares no keywords with the stored segment, so the
	// exact and fuzzy tiers miss and only the embedding can serve it.
	res, err := tr.TranslateChunk(ctx, chunker.Chunk{ID: 0, Text: query})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 on a semantic hit", provider.calls)
	}
	if res.MatchType != "semantic" {
		t.Errorf("match type = %q, want semantic", res.MatchType)
	}
	if res.Translated != "Vận tốc tăng dưới gia tốc không đổi." {
		t.Errorf("translated = %q", res.Translated)
	}
	if res.Quality < 0.89 || res.Quality > 0.9 {
		t.Errorf("quality = %v, want entry quality scaled by similarity ~1", res.Quality)
	}
}

func TestAcceptedTranslationIsPersisted(t *testing.T) {
	memory := newTestMemory(t)
	ctx := context.Background()

	provider := &prefixProvider{}
	tr := New(provider, Config{SourceLang: "en", TargetLang: "en", Mode: "stem"}, WithMemory(memory))

	src := "Clear prose with no surprises at all. It reads naturally."
	res, err := tr.TranslateChunk(ctx, chunker.Chunk{ID: 0, Text: src})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if res.Quality < 0.7 {
		t.Fatalf("quality = %v, test premise needs an accepted result", res.Quality)
	}

	// TM has the segment now.
	m, err := memory.ExactMatch(ctx, src, "en", "en")
	if err != nil || m == nil {
		t.Fatalf("exact match after persist: %v, %+v", err, m)
	}
	if m.Entry.TargetText != res.Translated {
		t.Errorf("persisted target = %q, want %q", m.Entry.TargetText, res.Translated)
	}

	// A second translation of the same chunk is served without the provider.
	before := provider.calls
	res2, err := tr.TranslateChunk(ctx, chunker.Chunk{ID: 1, Text: src})
	if err != nil {
		t.Fatalf("second translate: %v", err)
	}
	if provider.calls != before {
		t.Errorf("provider calls grew to %d on a repeat chunk", provider.calls)
	}
	if res2.Translated != res.Translated {
		t.Errorf("repeat = %q, want %q", res2.Translated, res.Translated)
	}
}

func TestFallbackKeepsSource(t *testing.T) {
	ch := chunker.Chunk{ID: 7, Text: "original text", OverlapChars: 4}
	res := Fallback(ch, errors.New("provider exploded"))
	if res.ChunkID != 7 || res.Quality != 0.0 || res.OverlapChars != 4 {
		t.Errorf("fallback = %+v", res)
	}
	if !strings.Contains(res.Translated, "original text") {
		t.Errorf("source lost from fallback: %q", res.Translated)
	}
	if !strings.HasPrefix(res.Translated, "[TRANSLATION FAILED]") {
		t.Errorf("fallback marker missing: %q", res.Translated)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "provider exploded") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}
