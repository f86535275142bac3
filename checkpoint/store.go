// Package checkpoint persists per-job translation progress so a
// crashed or cancelled job can resume without repeating provider calls.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/minhngdo/doctran/translate"
)

// ErrNotFound marks a job id with no stored checkpoint.
var ErrNotFound = errors.New("checkpoint: job not found")

// State is the durable snapshot of one job.
type State struct {
	JobID        string                   `json:"job_id"`
	InputFile    string                   `json:"input_file"`
	OutputFile   string                   `json:"output_file"`
	TotalChunks  int                      `json:"total_chunks"`
	CompletedIDs []int                    `json:"completed_chunk_ids"`
	Results      map[int]translate.Result `json:"results"`
	Metadata     map[string]string        `json:"metadata,omitempty"`
	CreatedAt    float64                  `json:"created_at"`
	UpdatedAt    float64                  `json:"updated_at"`
}

// Summary is one row of a checkpoint listing.
type Summary struct {
	JobID       string  `json:"job_id"`
	InputFile   string  `json:"input_file"`
	TotalChunks int     `json:"total_chunks"`
	Completed   int     `json:"completed"`
	UpdatedAt   float64 `json:"updated_at"`
}

// ResumeInfo summarizes how much of a job remains.
type ResumeInfo struct {
	JobID     string  `json:"job_id"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Remaining int     `json:"remaining"`
	Progress  float64 `json:"progress"`
}

// Store wraps the SQLite checkpoint database. Intended for a single
// writer per job id.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    job_id TEXT PRIMARY KEY,
    input_file TEXT NOT NULL,
    output_file TEXT NOT NULL,
    total_chunks INTEGER NOT NULL,
    completed_chunk_ids TEXT NOT NULL,
    results_data TEXT NOT NULL,
    job_metadata TEXT,
    created_at REAL NOT NULL,
    updated_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(updated_at);
`

// New opens (or creates) the checkpoint database at the given path.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging checkpoint database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating checkpoint schema: %w", err)
	}
	db.SetMaxOpenConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a job's state in one transaction. An existing row keeps
// its created_at; updated_at always advances.
func (s *Store) Save(ctx context.Context, st State) error {
	if st.JobID == "" {
		return errors.New("checkpoint: empty job id")
	}
	if len(st.CompletedIDs) > st.TotalChunks {
		return fmt.Errorf("checkpoint: %d completed ids exceed %d total chunks",
			len(st.CompletedIDs), st.TotalChunks)
	}

	completedJSON, err := json.Marshal(st.CompletedIDs)
	if err != nil {
		return fmt.Errorf("encoding completed ids: %w", err)
	}
	// Chunk ids become string keys in JSON and are rehydrated on load.
	results := make(map[string]translate.Result, len(st.Results))
	for id, r := range st.Results {
		results[strconv.Itoa(id)] = r
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	metaJSON, err := json.Marshal(st.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	now := float64(time.Now().UnixNano()) / float64(time.Second)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (job_id, input_file, output_file, total_chunks,
			completed_chunk_ids, results_data, job_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			input_file = excluded.input_file,
			output_file = excluded.output_file,
			total_chunks = excluded.total_chunks,
			completed_chunk_ids = excluded.completed_chunk_ids,
			results_data = excluded.results_data,
			job_metadata = excluded.job_metadata,
			updated_at = excluded.updated_at
	`, st.JobID, st.InputFile, st.OutputFile, st.TotalChunks,
		string(completedJSON), string(resultsJSON), string(metaJSON), now, now)
	if err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", st.JobID, err)
	}
	return nil
}

// Load returns the stored state for jobID, rehydrating integer chunk
// ids from their JSON string keys.
func (s *Store) Load(ctx context.Context, jobID string) (*State, error) {
	st := &State{JobID: jobID}
	var completedJSON, resultsJSON string
	var metaJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT input_file, output_file, total_chunks, completed_chunk_ids,
			results_data, job_metadata, created_at, updated_at
		FROM checkpoints WHERE job_id = ?
	`, jobID).Scan(&st.InputFile, &st.OutputFile, &st.TotalChunks,
		&completedJSON, &resultsJSON, &metaJSON, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", jobID, err)
	}

	if err := json.Unmarshal([]byte(completedJSON), &st.CompletedIDs); err != nil {
		return nil, fmt.Errorf("decoding completed ids: %w", err)
	}
	var raw map[string]translate.Result
	if err := json.Unmarshal([]byte(resultsJSON), &raw); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	st.Results = make(map[int]translate.Result, len(raw))
	for key, r := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("non-numeric chunk id %q in checkpoint", key)
		}
		st.Results[id] = r
	}
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &st.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	sort.Ints(st.CompletedIDs)
	return st, nil
}

// Has reports whether a checkpoint exists for jobID.
func (s *Store) Has(ctx context.Context, jobID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM checkpoints WHERE job_id = ?", jobID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a job's checkpoint. Deleting a missing job is not an error.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM checkpoints WHERE job_id = ?", jobID)
	return err
}

// List returns up to limit checkpoints, most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, input_file, total_chunks, completed_chunk_ids, updated_at
		FROM checkpoints ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var completedJSON string
		if err := rows.Scan(&sum.JobID, &sum.InputFile, &sum.TotalChunks,
			&completedJSON, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		var ids []int
		if err := json.Unmarshal([]byte(completedJSON), &ids); err == nil {
			sum.Completed = len(ids)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetResumeInfo summarizes the remaining work for a job.
func (s *Store) GetResumeInfo(ctx context.Context, jobID string) (*ResumeInfo, error) {
	st, err := s.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	info := &ResumeInfo{
		JobID:     jobID,
		Total:     st.TotalChunks,
		Completed: len(st.CompletedIDs),
		Remaining: st.TotalChunks - len(st.CompletedIDs),
	}
	if st.TotalChunks > 0 {
		info.Progress = float64(info.Completed) / float64(st.TotalChunks)
	}
	return info, nil
}

// CleanupOlderThan deletes checkpoints not updated within the given
// number of days and returns how many were removed.
func (s *Store) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := float64(time.Now().AddDate(0, 0, -days).UnixNano()) / float64(time.Second)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM checkpoints WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
