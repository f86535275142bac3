// Package translate executes the single-chunk translation contract:
// consult the lookup tiers, otherwise protect STEM content, build a
// prompt, call the provider, validate, and cache the accepted result.
package translate

import (
	"context"
	"fmt"

	"github.com/minhngdo/doctran/chunker"
	"github.com/minhngdo/doctran/dispatch"
	"github.com/minhngdo/doctran/glossary"
	"github.com/minhngdo/doctran/llm"
	"github.com/minhngdo/doctran/protect"
	"github.com/minhngdo/doctran/quality"
	"github.com/minhngdo/doctran/tm"
)

// Result is one translated chunk.
type Result struct {
	ChunkID      int      `json:"chunk_id"`
	Source       string   `json:"source"`
	Translated   string   `json:"translated"`
	Quality      float64  `json:"quality"`
	Warnings     []string `json:"warnings,omitempty"`
	OverlapChars int      `json:"overlap_chars"`
	MatchType    string   `json:"match_type,omitempty"` // exact, fuzzy, semantic, cache; empty for a provider call
}

// Config tunes a Translator.
type Config struct {
	SourceLang     string
	TargetLang     string
	Domain         string
	Mode           string  // chunking mode tag, part of the cache key
	FuzzyThreshold float64 // default 0.75
	QualityRetries int     // provider round-trips while score < quality.RetryBelow, default 3
}

// Translator translates one chunk at a time. It is safe for concurrent
// use; all mutable state lives in the stores it wraps.
type Translator struct {
	cfg       Config
	provider  llm.Provider
	memory    *tm.Store // optional
	validator *quality.Validator
	glossary  *glossary.Glossary // optional
	detector  *protect.Detector
	stats     *dispatch.Stats // optional
}

// Option configures a Translator.
type Option func(*Translator)

// WithMemory attaches a translation memory and chunk cache.
func WithMemory(s *tm.Store) Option {
	return func(t *Translator) { t.memory = s }
}

// WithGlossary attaches enforced terminology.
func WithGlossary(g *glossary.Glossary) Option {
	return func(t *Translator) { t.glossary = g }
}

// WithStats attaches the job counters for cache hit/miss accounting.
func WithStats(s *dispatch.Stats) Option {
	return func(t *Translator) { t.stats = s }
}

// New returns a Translator for the given provider and configuration.
func New(provider llm.Provider, cfg Config, opts ...Option) *Translator {
	if cfg.FuzzyThreshold == 0 {
		cfg.FuzzyThreshold = 0.75
	}
	if cfg.QualityRetries <= 0 {
		cfg.QualityRetries = 3
	}
	t := &Translator{
		cfg:       cfg,
		provider:  provider,
		validator: quality.NewValidator(),
		detector:  protect.NewDetector(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TranslateChunk runs the full per-chunk contract. Provider failures
// are returned as-is so the dispatcher can drive its retry policy; a
// low quality score is not an error.
func (t *Translator) TranslateChunk(ctx context.Context, ch chunker.Chunk) (Result, error) {
	if r, ok, err := t.lookup(ctx, ch); err != nil {
		return Result{}, err
	} else if ok {
		t.cacheHit()
		return r, nil
	}
	t.cacheMiss()

	// Protect STEM content before it ever reaches the provider.
	regions := t.detector.Detect(ch.Text)
	substituted, pmap := protect.Apply(ch.Text, regions)

	system := t.systemPrompt()
	user := t.userPrompt(ch, substituted)

	var result Result
	for attempt := 1; ; attempt++ {
		raw, err := t.provider.Translate(ctx, system, user)
		if err != nil {
			return Result{}, err
		}

		translated, restoreReport := pmap.Restore(extractPayload(raw))
		report := t.validator.Validate(quality.Input{
			Source:     ch.Text,
			Translated: translated,
			SourceLang: t.cfg.SourceLang,
			TargetLang: t.cfg.TargetLang,
			Domain:     t.cfg.Domain,
			Glossary:   t.glossary,
		})

		result = Result{
			ChunkID:      ch.ID,
			Source:       ch.Text,
			Translated:   translated,
			Quality:      report.Score,
			Warnings:     report.Warnings,
			OverlapChars: ch.OverlapChars,
		}
		for _, missing := range restoreReport.Missing {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("protected content %s lost in translation", missing))
		}
		if rate := restoreReport.PreservationRate(); rate < 1.0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("preservation rate %.2f", rate))
		}

		if report.Score >= quality.RetryBelow || attempt >= t.cfg.QualityRetries {
			break
		}
	}

	if result.Quality >= quality.CacheAbove {
		t.persist(ctx, result)
	}
	return result, nil
}

// lookup consults the tiers in priority order: exact TM, fuzzy TM,
// chunk cache.
func (t *Translator) lookup(ctx context.Context, ch chunker.Chunk) (Result, bool, error) {
	if t.memory == nil {
		return Result{}, false, nil
	}

	if m, err := t.memory.ExactMatch(ctx, ch.Text, t.cfg.SourceLang, t.cfg.TargetLang); err != nil {
		return Result{}, false, err
	} else if m != nil {
		return Result{
			ChunkID:      ch.ID,
			Source:       ch.Text,
			Translated:   m.Entry.TargetText,
			Quality:      m.Entry.QualityScore,
			OverlapChars: ch.OverlapChars,
			MatchType:    string(tm.MatchExact),
		}, true, nil
	}

	if matches, err := t.memory.FuzzyMatch(ctx, ch.Text, t.cfg.SourceLang, t.cfg.TargetLang, t.cfg.FuzzyThreshold, 1); err != nil {
		return Result{}, false, err
	} else if len(matches) > 0 {
		m := matches[0]
		return Result{
			ChunkID:      ch.ID,
			Source:       ch.Text,
			Translated:   m.Entry.TargetText,
			Quality:      m.Entry.QualityScore * m.Similarity,
			OverlapChars: ch.OverlapChars,
			MatchType:    string(tm.MatchFuzzy),
		}, true, nil
	}

	// Semantic lookup finds reformulations the keyword query cannot.
	// A no-op unless the store was built with an embedder.
	if matches, err := t.memory.SemanticMatch(ctx, ch.Text, t.cfg.SourceLang, t.cfg.TargetLang, 1); err != nil {
		return Result{}, false, err
	} else if len(matches) > 0 && matches[0].Similarity >= t.cfg.FuzzyThreshold {
		m := matches[0]
		return Result{
			ChunkID:      ch.ID,
			Source:       ch.Text,
			Translated:   m.Entry.TargetText,
			Quality:      m.Entry.QualityScore * m.Similarity,
			OverlapChars: ch.OverlapChars,
			MatchType:    string(tm.MatchSemantic),
		}, true, nil
	}

	key := t.cacheKey(ch.Text)
	if cached, ok, err := t.memory.CacheGet(ctx, key); err != nil {
		return Result{}, false, err
	} else if ok {
		return Result{
			ChunkID:      ch.ID,
			Source:       ch.Text,
			Translated:   cached,
			Quality:      1.0,
			OverlapChars: ch.OverlapChars,
			MatchType:    "cache",
		}, true, nil
	}
	return Result{}, false, nil
}

// persist writes an accepted translation to the chunk cache and the TM.
// Persistence failures degrade reuse, not the result itself.
func (t *Translator) persist(ctx context.Context, r Result) {
	if t.memory == nil {
		return
	}
	_ = t.memory.CachePut(ctx, t.cacheKey(r.Source), r.Translated, r.Quality)
	_, _ = t.memory.Insert(ctx, tm.Entry{
		SourceText:   r.Source,
		TargetText:   r.Translated,
		SourceLang:   t.cfg.SourceLang,
		TargetLang:   t.cfg.TargetLang,
		Domain:       t.cfg.Domain,
		QualityScore: r.Quality,
	})
}

func (t *Translator) cacheKey(source string) string {
	return tm.CacheKey(source, t.cfg.SourceLang, t.cfg.TargetLang, t.cfg.Mode, t.cfg.Domain)
}

func (t *Translator) cacheHit() {
	if t.stats != nil {
		t.stats.RecordCacheHit()
	}
}

func (t *Translator) cacheMiss() {
	if t.stats != nil {
		t.stats.RecordCacheMiss()
	}
}

// Fallback builds the result used when every dispatcher attempt failed:
// the source text survives behind an error marker so downstream merging
// still produces a complete document.
func Fallback(ch chunker.Chunk, cause error) Result {
	return Result{
		ChunkID:      ch.ID,
		Source:       ch.Text,
		Translated:   "[TRANSLATION FAILED] " + ch.Text,
		Quality:      0.0,
		Warnings:     []string{fmt.Sprintf("translation failed: %v", cause)},
		OverlapChars: ch.OverlapChars,
	}
}
