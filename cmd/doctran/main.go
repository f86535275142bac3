package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/minhngdo/doctran"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	inPath := flag.String("in", "", "Input document (txt, md, pdf, docx)")
	outPath := flag.String("out", "", "Output document (txt, docx, pdf)")
	resumeID := flag.String("resume", "", "Resume the checkpointed job with this id")
	listJobs := flag.Bool("list", false, "List resumable jobs and exit")
	cleanupDays := flag.Int("cleanup", 0, "Delete checkpoints older than this many days and exit")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	// A .env next to the binary is optional.
	_ = godotenv.Load()

	cfg := doctran.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			slog.Error("reading config", "error", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := doctran.New(cfg, doctran.WithSink(progressSink{}))
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	switch {
	case *listJobs:
		jobs, err := pipeline.ListJobs(ctx, 20)
		if err != nil {
			slog.Error("listing jobs", "error", err)
			os.Exit(1)
		}
		if len(jobs) == 0 {
			fmt.Println("no resumable jobs")
			return
		}
		for _, j := range jobs {
			fmt.Printf("%s  %s  %d/%d chunks  updated %s\n",
				j.JobID, j.InputFile, j.Completed, j.TotalChunks,
				time.Unix(int64(j.UpdatedAt), 0).Format(time.RFC3339))
		}

	case *cleanupDays > 0:
		n, err := pipeline.CleanupCheckpoints(ctx, *cleanupDays)
		if err != nil {
			slog.Error("cleaning up checkpoints", "error", err)
			os.Exit(1)
		}
		fmt.Printf("removed %d stale checkpoints\n", n)

	case *resumeID != "":
		runJob(func() (*doctran.Job, error) {
			return pipeline.Resume(ctx, *resumeID)
		})

	default:
		if *inPath == "" || *outPath == "" {
			fmt.Fprintln(os.Stderr, "usage: doctran -in input.pdf -out output.txt [-config doctran.yaml]")
			flag.PrintDefaults()
			os.Exit(2)
		}
		runJob(func() (*doctran.Job, error) {
			return pipeline.TranslateFile(ctx, *inPath, *outPath)
		})
	}
}

func runJob(run func() (*doctran.Job, error)) {
	job, err := run()
	if err != nil {
		slog.Error("job failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("job %s done: %d chunks, mean quality %.2f, %s -> %s (%s)\n",
		job.ID, job.TotalChunks, job.MeanQuality,
		filepath.Base(job.InputFile), job.OutputPath, job.Duration.Round(time.Second))
}

// applyEnv overrides configuration from DOCTRAN_* environment
// variables, then falls back to well-known provider key variables.
func applyEnv(cfg *doctran.Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.SourceLang, "DOCTRAN_SOURCE_LANG")
	set(&cfg.TargetLang, "DOCTRAN_TARGET_LANG")
	set(&cfg.Domain, "DOCTRAN_DOMAIN")
	set(&cfg.Mode, "DOCTRAN_MODE")
	set(&cfg.TMPath, "DOCTRAN_TM_PATH")
	set(&cfg.CheckpointPath, "DOCTRAN_CHECKPOINT_PATH")
	set(&cfg.GlossaryPath, "DOCTRAN_GLOSSARY_PATH")
	set(&cfg.LLM.Provider, "DOCTRAN_LLM_PROVIDER")
	set(&cfg.LLM.Model, "DOCTRAN_LLM_MODEL")
	set(&cfg.LLM.BaseURL, "DOCTRAN_LLM_BASE_URL")
	set(&cfg.LLM.APIKey, "DOCTRAN_LLM_API_KEY")
	set(&cfg.LLM.EmbeddingModel, "DOCTRAN_LLM_EMBEDDING_MODEL")
	if v := os.Getenv("DOCTRAN_LLM_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLM.EmbeddingDim = n
		}
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
		case "openrouter":
			cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "gemini":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		case "xai":
			cfg.LLM.APIKey = os.Getenv("XAI_API_KEY")
		}
	}
}

// applyDefaults places the databases under ~/.doctran when the
// configuration does not name them.
func applyDefaults(cfg *doctran.Config) {
	if cfg.TMPath != "" && cfg.CheckpointPath != "" {
		return
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	dataDir := filepath.Join(home, ".doctran")
	if v := os.Getenv("DOCTRAN_DATA_DIR"); v != "" {
		dataDir = v
	}
	if cfg.TMPath == "" {
		cfg.TMPath = filepath.Join(dataDir, "tm.db")
	}
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = filepath.Join(dataDir, "checkpoints.db")
	}
}

// progressSink logs progress events; chunk-level noise stays at debug.
type progressSink struct{}

func (progressSink) Publish(ev doctran.Event) {
	switch ev.Kind {
	case doctran.EventJobStarted:
		slog.Info("job started", "job", ev.JobID, "chunks", ev.Total, "resumed", ev.Completed)
	case doctran.EventChunkTranslated:
		slog.Debug("chunk translated", "job", ev.JobID, "chunk", ev.ChunkID,
			"completed", ev.Completed, "total", ev.Total)
	case doctran.EventBatchExported:
		slog.Info("batch exported", "job", ev.JobID, "batch", ev.Batch,
			"completed", ev.Completed, "total", ev.Total)
	case doctran.EventJobCompleted:
		slog.Info("job completed", "job", ev.JobID, "output", ev.OutputPath)
	}
}
