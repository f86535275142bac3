package doctran

import (
	"fmt"
	"time"

	"github.com/minhngdo/doctran/llm"
)

// Config holds everything a translation job needs. Zero values fall
// back to the defaults below; Validate catches the rest.
type Config struct {
	SourceLang string `json:"source_lang" yaml:"source_lang"`
	TargetLang string `json:"target_lang" yaml:"target_lang"`
	// Domain selects the validation profile: default, medical,
	// finance, technology, literature.
	Domain string `json:"domain" yaml:"domain"`
	// Mode selects the chunking strategy: "stem" protects formulas
	// and code and cuts around them, "plain" chunks by paragraph with
	// overlap.
	Mode string `json:"mode" yaml:"mode"`

	// MaxChunkChars bounds chunk size in characters.
	MaxChunkChars int `json:"max_chunk_chars" yaml:"max_chunk_chars"`
	// BatchSize is how many translated chunks are flushed to the
	// output writer at a time.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Concurrency bounds in-flight provider calls.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// MaxRetries bounds provider attempts per chunk.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// TaskTimeout bounds one provider attempt.
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout"`

	// FuzzyThreshold is the minimum similarity for a fuzzy memory hit.
	FuzzyThreshold float64 `json:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	// QualityRetries bounds provider round-trips on low-scoring output.
	QualityRetries int `json:"quality_retries" yaml:"quality_retries"`

	// TMPath is the translation-memory database; empty disables reuse.
	TMPath string `json:"tm_path" yaml:"tm_path"`
	// CheckpointPath is the checkpoint database; empty disables resume.
	CheckpointPath string `json:"checkpoint_path" yaml:"checkpoint_path"`
	// GlossaryPath is an optional CSV, TSV or XLSX terminology file.
	GlossaryPath string `json:"glossary_path" yaml:"glossary_path"`

	LLM llm.Config `json:"llm" yaml:"llm"`
}

// DefaultConfig returns the defaults for an en to vi STEM job.
func DefaultConfig() Config {
	return Config{
		SourceLang:     "en",
		TargetLang:     "vi",
		Domain:         "default",
		Mode:           "stem",
		MaxChunkChars:  2000,
		BatchSize:      100,
		Concurrency:    5,
		MaxRetries:     3,
		TaskTimeout:    180 * time.Second,
		FuzzyThreshold: 0.75,
		QualityRetries: 3,
	}
}

// Validate fills defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.SourceLang == "" || c.TargetLang == "" {
		return fmt.Errorf("%w: source and target languages are required", ErrInvalidConfig)
	}
	if c.SourceLang == c.TargetLang && c.Mode != "stem" {
		// Identity pairs are allowed for stem round-trip checks.
		return fmt.Errorf("%w: source and target languages are identical", ErrInvalidConfig)
	}
	if c.Domain == "" {
		c.Domain = "default"
	}
	switch c.Mode {
	case "":
		c.Mode = "stem"
	case "stem", "plain":
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = 2000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 180 * time.Second
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		c.FuzzyThreshold = 0.75
	}
	if c.QualityRetries <= 0 {
		c.QualityRetries = 3
	}
	if c.LLM.EmbeddingModel != "" && c.LLM.EmbeddingDim <= 0 {
		c.LLM.EmbeddingDim = 768
	}
	return nil
}
