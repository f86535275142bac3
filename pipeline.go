// Package doctran translates long documents with an LLM provider:
// parse, protect STEM content, chunk, translate concurrently with
// reuse from a translation memory, validate, checkpoint, and write
// the output in batches.
package doctran

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minhngdo/doctran/checkpoint"
	"github.com/minhngdo/doctran/chunker"
	"github.com/minhngdo/doctran/dispatch"
	"github.com/minhngdo/doctran/glossary"
	"github.com/minhngdo/doctran/llm"
	"github.com/minhngdo/doctran/merge"
	"github.com/minhngdo/doctran/parser"
	"github.com/minhngdo/doctran/protect"
	"github.com/minhngdo/doctran/tm"
	"github.com/minhngdo/doctran/translate"
	"github.com/minhngdo/doctran/writer"
)

// Pipeline wires the translation stages together. Build one per
// configuration and reuse it across jobs.
type Pipeline struct {
	cfg          Config
	provider     llm.Provider
	embedder     llm.Embedder
	embeddingDim int
	memory       *tm.Store
	gloss        *glossary.Glossary
	registry     *parser.Registry
	checkpoints  *checkpoint.Store
	sinks        []Sink
	log          *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProvider overrides the provider built from Config.LLM.
func WithProvider(p llm.Provider) Option {
	return func(pl *Pipeline) { pl.provider = p }
}

// WithEmbedder overrides the embedding client built from Config.LLM
// and enables semantic translation-memory lookup.
func WithEmbedder(e llm.Embedder, dim int) Option {
	return func(pl *Pipeline) {
		pl.embedder = e
		pl.embeddingDim = dim
	}
}

// WithSink subscribes a progress sink. May be given more than once.
func WithSink(s Sink) Option {
	return func(pl *Pipeline) { pl.sinks = append(pl.sinks, s) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.log = l }
}

// New builds a Pipeline, opening the translation memory, checkpoint
// store and glossary named in the configuration.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		registry: parser.NewRegistry(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.provider == nil {
		prov, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		p.provider = prov
	}
	if p.embedder == nil && cfg.LLM.EmbeddingModel != "" {
		emb, err := llm.NewEmbedder(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		p.embedder = emb
		p.embeddingDim = cfg.LLM.EmbeddingDim
	}
	if cfg.TMPath != "" {
		var tmOpts []tm.Option
		if p.embedder != nil {
			tmOpts = append(tmOpts, tm.WithEmbedder(p.embedder, p.embeddingDim))
		}
		store, err := tm.New(cfg.TMPath, tmOpts...)
		if err != nil {
			return nil, fmt.Errorf("opening translation memory: %w", err)
		}
		p.memory = store
	}
	if cfg.CheckpointPath != "" {
		store, err := checkpoint.New(cfg.CheckpointPath)
		if err != nil {
			p.closeStores()
			return nil, fmt.Errorf("opening checkpoint store: %w", err)
		}
		p.checkpoints = store
	}
	if cfg.GlossaryPath != "" {
		g, err := glossary.LoadFile(cfg.GlossaryPath)
		if err != nil {
			p.closeStores()
			return nil, fmt.Errorf("loading glossary: %w", err)
		}
		p.gloss = g
	}
	return p, nil
}

// Close releases the pipeline's stores.
func (p *Pipeline) Close() error {
	return p.closeStores()
}

func (p *Pipeline) closeStores() error {
	var firstErr error
	if p.memory != nil {
		if err := p.memory.Close(); err != nil {
			firstErr = err
		}
		p.memory = nil
	}
	if p.checkpoints != nil {
		if err := p.checkpoints.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.checkpoints = nil
	}
	return firstErr
}

// Job is the outcome of one completed translation run.
type Job struct {
	ID          string            `json:"id"`
	InputFile   string            `json:"input_file"`
	OutputFile  string            `json:"output_file"`
	OutputPath  string            `json:"output_path"`
	TotalChunks int               `json:"total_chunks"`
	MeanQuality float64           `json:"mean_quality"`
	Stats       dispatch.Snapshot `json:"stats"`
	Duration    time.Duration     `json:"duration"`
}

// TranslateFile runs a fresh job over inputPath and writes the result
// to outputPath.
func (p *Pipeline) TranslateFile(ctx context.Context, inputPath, outputPath string) (*Job, error) {
	return p.run(ctx, uuid.NewString(), inputPath, outputPath, nil)
}

// Resume continues a checkpointed job, translating only the chunks
// that have no stored result.
func (p *Pipeline) Resume(ctx context.Context, jobID string) (*Job, error) {
	if p.checkpoints == nil {
		return nil, fmt.Errorf("%w: checkpointing is not configured", ErrJobNotFound)
	}
	st, err := p.checkpoints.Load(ctx, jobID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	return p.run(ctx, jobID, st.InputFile, st.OutputFile, st)
}

func (p *Pipeline) run(ctx context.Context, jobID, inputPath, outputPath string, prior *checkpoint.State) (*Job, error) {
	start := time.Now()

	if p.checkpoints != nil {
		lock, err := checkpoint.AcquireJobLock(filepath.Dir(p.cfg.CheckpointPath), jobID)
		if errors.Is(err, checkpoint.ErrJobLocked) {
			return nil, fmt.Errorf("%w: %s", ErrJobLocked, jobID)
		}
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	doc, err := p.registry.ParseFile(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}

	chunks := p.chunk(doc.Text)
	total := len(chunks)
	byID := make(map[int]chunker.Chunk, total)
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	// Chunking is deterministic, so a checkpoint from a different
	// chunk count means the input or settings changed under the job.
	if prior != nil && prior.TotalChunks != total {
		p.log.Warn("chunk count differs from checkpoint, retranslating everything",
			"job", jobID, "checkpoint", prior.TotalChunks, "now", total)
		prior = nil
	}

	results := make(map[int]translate.Result, total)
	if prior != nil {
		for id, r := range prior.Results {
			results[id] = r
		}
	}

	p.publish(Event{Kind: EventJobStarted, JobID: jobID, Completed: len(results), Total: total})
	p.log.Info("job started", "job", jobID, "input", inputPath,
		"chunks", total, "resumed", len(results))

	stats := dispatch.NewStats()
	tr := p.translator(stats)

	var tasks []dispatch.Task[translate.Result]
	for _, ch := range chunks {
		if _, done := results[ch.ID]; done {
			continue
		}
		ch := ch
		tasks = append(tasks, dispatch.Task[translate.Result]{
			ID: ch.ID,
			Run: func(taskCtx context.Context) (translate.Result, error) {
				return tr.TranslateChunk(taskCtx, ch)
			},
		})
	}

	var mu sync.Mutex
	d := dispatch.New[translate.Result](dispatch.Config{
		Concurrency: p.cfg.Concurrency,
		MaxRetries:  p.cfg.MaxRetries,
		TaskTimeout: p.cfg.TaskTimeout,
	})
	d.Run(ctx, tasks, stats, func(o dispatch.Outcome[translate.Result]) {
		res := o.Result
		if o.State != dispatch.StateCompleted {
			if errors.Is(o.Err, dispatch.ErrCancelled) {
				// Stays pending so a resume retranslates it.
				return
			}
			res = translate.Fallback(byID[o.ID], o.Err)
		}
		mu.Lock()
		results[o.ID] = res
		snapshot := p.checkpointState(jobID, inputPath, outputPath, total, results)
		done := len(results)
		mu.Unlock()

		p.publish(Event{
			Kind: EventChunkTranslated, JobID: jobID, ChunkID: o.ID,
			Preview: preview(res.Translated), Completed: done, Total: total,
		})
		p.saveCheckpoint(snapshot)
	})

	if err := ctx.Err(); err != nil {
		// The checkpoint survives so the job can resume.
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	ordered := p.assemble(results, total)

	w, err := writer.New(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	for startIdx := 0; startIdx < total; startIdx += p.cfg.BatchSize {
		endIdx := min(startIdx+p.cfg.BatchSize, total)
		batch := startIdx / p.cfg.BatchSize
		p.publish(Event{Kind: EventBatchCompleted, JobID: jobID, Batch: batch,
			Completed: endIdx, Total: total})
		if err := w.AddBatch(ordered[startIdx:endIdx]); err != nil {
			w.Cleanup()
			return nil, fmt.Errorf("%w: %v", ErrWriterFailed, err)
		}
		p.publish(Event{Kind: EventBatchExported, JobID: jobID, Batch: batch,
			Completed: endIdx, Total: total})
	}
	finalPath, err := w.MergeAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriterFailed, err)
	}

	if p.checkpoints != nil {
		if err := p.checkpoints.Delete(context.Background(), jobID); err != nil {
			p.log.Warn("deleting finished checkpoint", "job", jobID, "error", err)
		}
	}

	var qualitySum float64
	for _, r := range ordered {
		qualitySum += r.Quality
	}
	job := &Job{
		ID:          jobID,
		InputFile:   inputPath,
		OutputFile:  outputPath,
		OutputPath:  finalPath,
		TotalChunks: total,
		MeanQuality: qualitySum / float64(total),
		Stats:       stats.Snapshot(),
		Duration:    time.Since(start),
	}
	p.publish(Event{Kind: EventJobCompleted, JobID: jobID,
		Completed: total, Total: total, OutputPath: finalPath})
	p.log.Info("job completed", "job", jobID, "output", finalPath,
		"mean_quality", job.MeanQuality, "duration", job.Duration)
	return job, nil
}

// ListJobs returns the most recently updated resumable jobs.
func (p *Pipeline) ListJobs(ctx context.Context, limit int) ([]checkpoint.Summary, error) {
	if p.checkpoints == nil {
		return nil, nil
	}
	return p.checkpoints.List(ctx, limit)
}

// CleanupCheckpoints removes checkpoints older than the given number
// of days and reports how many were deleted.
func (p *Pipeline) CleanupCheckpoints(ctx context.Context, days int) (int, error) {
	if p.checkpoints == nil {
		return 0, nil
	}
	return p.checkpoints.CleanupOlderThan(ctx, days)
}

// chunk splits the document according to the configured mode.
func (p *Pipeline) chunk(text string) []chunker.Chunk {
	c := chunker.New(chunker.Config{MaxChars: p.cfg.MaxChunkChars})
	if p.cfg.Mode == "plain" {
		return c.SplitPlain(text)
	}
	return c.Split(text, protect.NewDetector().Detect(text))
}

func (p *Pipeline) translator(stats *dispatch.Stats) *translate.Translator {
	opts := []translate.Option{translate.WithStats(stats)}
	if p.memory != nil {
		opts = append(opts, translate.WithMemory(p.memory))
	}
	if p.gloss != nil {
		opts = append(opts, translate.WithGlossary(p.gloss))
	}
	return translate.New(p.provider, translate.Config{
		SourceLang:     p.cfg.SourceLang,
		TargetLang:     p.cfg.TargetLang,
		Domain:         p.cfg.Domain,
		Mode:           p.cfg.Mode,
		FuzzyThreshold: p.cfg.FuzzyThreshold,
		QualityRetries: p.cfg.QualityRetries,
	}, opts...)
}

// assemble orders results by chunk id and removes the duplicated
// overlap between neighbours so the writer sees clean text.
func (p *Pipeline) assemble(results map[int]translate.Result, total int) []translate.Result {
	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	merger := merge.New(merge.Config{SourceLang: p.cfg.SourceLang, TargetLang: p.cfg.TargetLang})
	out := make([]translate.Result, 0, total)
	prev := ""
	for i, id := range ids {
		r := results[id]
		original := r.Translated
		if i > 0 {
			r.Translated = merger.Dedupe(prev, r)
		}
		r.Translated = merge.Clean(r.Translated)
		out = append(out, r)
		prev = original
	}
	return out
}

// checkpointState snapshots the mutable result map for saving. Caller
// holds the results lock.
func (p *Pipeline) checkpointState(jobID, inputPath, outputPath string, total int, results map[int]translate.Result) *checkpoint.State {
	if p.checkpoints == nil {
		return nil
	}
	st := &checkpoint.State{
		JobID:       jobID,
		InputFile:   inputPath,
		OutputFile:  outputPath,
		TotalChunks: total,
		Results:     make(map[int]translate.Result, len(results)),
		Metadata: map[string]string{
			"source_lang": p.cfg.SourceLang,
			"target_lang": p.cfg.TargetLang,
			"domain":      p.cfg.Domain,
			"mode":        p.cfg.Mode,
		},
	}
	for id, r := range results {
		st.Results[id] = r
		st.CompletedIDs = append(st.CompletedIDs, id)
	}
	sort.Ints(st.CompletedIDs)
	return st
}

// saveCheckpoint persists a snapshot. Uses a background context so a
// cancelled job still records the progress it made.
func (p *Pipeline) saveCheckpoint(st *checkpoint.State) {
	if p.checkpoints == nil || st == nil {
		return
	}
	if err := p.checkpoints.Save(context.Background(), *st); err != nil {
		p.log.Warn("saving checkpoint", "job", st.JobID, "error", err)
	}
}
