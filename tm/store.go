// Package tm is the persistent translation memory: exact and fuzzy
// lookup of previously translated segments, an optional semantic index,
// and a content-addressed chunk cache.
package tm

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/minhngdo/doctran/llm"
)

func init() {
	sqlite_vec.Auto()
}

const (
	// fuzzyKeywordCount is how many keywords seed the FTS query.
	fuzzyKeywordCount = 5

	cacheFrontSize = 4096
)

// MatchType distinguishes how a lookup hit was found.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchSemantic MatchType = "semantic"
)

// Entry is one translation memory segment.
type Entry struct {
	ID           int64   `json:"id"`
	SourceHash   string  `json:"source_hash"`
	SourceText   string  `json:"source_text"`
	TargetText   string  `json:"target_text"`
	SourceLang   string  `json:"source_lang"`
	TargetLang   string  `json:"target_lang"`
	Domain       string  `json:"domain,omitempty"`
	QualityScore float64 `json:"quality_score"`
	UseCount     int     `json:"use_count"`
	Context      string  `json:"context,omitempty"`
	Project      string  `json:"project,omitempty"`
	Origin       string  `json:"origin,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// Match is a lookup hit with its similarity to the query.
type Match struct {
	Entry      Entry     `json:"entry"`
	Similarity float64   `json:"similarity"`
	Type       MatchType `json:"match_type"`
}

// Store wraps the SQLite database holding TM segments and the chunk cache.
type Store struct {
	db           *sql.DB
	embedder     llm.Embedder
	embeddingDim int
	front        *lru.Cache[string, string]
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder enables the semantic index. Segments are embedded on
// insert and SemanticMatch becomes available.
func WithEmbedder(e llm.Embedder, dim int) Option {
	return func(s *Store) {
		s.embedder = e
		s.embeddingDim = dim
	}
}

// New opens (or creates) a translation memory database at the given path.
func New(dbPath string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating tm directory: %w", err)
		}
	}

	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening tm database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging tm database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(s.embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tm schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	s.db = db

	front, err := lru.New[string, string](cacheFrontSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.front = front
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SegmentHash is the uniqueness key of a TM segment: a content hash
// over the language pair and the trimmed source text.
func SegmentHash(sourceLang, targetLang, source string) string {
	h := sha256.New()
	h.Write([]byte(sourceLang))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(source)))
	return hex.EncodeToString(h.Sum(nil))
}

// Insert stores a segment. Re-inserting an existing key updates target,
// quality, domain and timestamps in place and bumps the use counter; it
// never creates a duplicate row.
func (s *Store) Insert(ctx context.Context, e Entry) (int64, error) {
	if e.SourceHash == "" {
		e.SourceHash = SegmentHash(e.SourceLang, e.TargetLang, e.SourceText)
	}
	// RETURNING yields the row id for both arms of the upsert;
	// LastInsertId would report a stale rowid on the update arm.
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tm_entries (source_hash, source_text, target_text, source_lang, target_lang,
			domain, quality_score, context, project, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_hash) DO UPDATE SET
			target_text = excluded.target_text,
			quality_score = excluded.quality_score,
			domain = excluded.domain,
			context = excluded.context,
			use_count = tm_entries.use_count + 1,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, e.SourceHash, e.SourceText, e.TargetText, e.SourceLang, e.TargetLang,
		e.Domain, e.QualityScore, e.Context, e.Project, e.Origin).Scan(&id)
	if err != nil {
		return 0, err
	}

	if s.embedder != nil {
		if err := s.indexEmbedding(ctx, id, e.SourceText); err != nil {
			// Semantic index failures must not lose the segment itself.
			return id, nil
		}
	}
	return id, nil
}

// ExactMatch looks up a segment whose source is identical to the query.
// A hit carries similarity 1 and increments the segment's use counter.
func (s *Store) ExactMatch(ctx context.Context, source, sourceLang, targetLang string) (*Match, error) {
	row := s.db.QueryRowContext(ctx, entrySelect+`
		FROM tm_entries WHERE source_hash = ?
	`, SegmentHash(sourceLang, targetLang, source))

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE tm_entries SET use_count = use_count + 1 WHERE id = ?", e.ID); err != nil {
		return nil, err
	}
	e.UseCount++
	return &Match{Entry: *e, Similarity: 1.0, Type: MatchExact}, nil
}

// FuzzyMatch returns up to k segments whose source text is similar to
// the query at or above threshold, best first. Candidates come from an
// FTS5 keyword query over the source column (up to 3k of them) and are
// rescored with a combined edit-distance and n-gram metric.
func (s *Store) FuzzyMatch(ctx context.Context, source, sourceLang, targetLang string, threshold float64, k int) ([]Match, error) {
	if k <= 0 {
		k = 1
	}
	keywords := topKeywords(source, fuzzyKeywordCount)
	if len(keywords) == 0 {
		return nil, nil
	}
	for i, kw := range keywords {
		keywords[i] = `"` + strings.ReplaceAll(kw, `"`, `""`) + `"`
	}
	query := "source_text: (" + strings.Join(keywords, " OR ") + ")"

	rows, err := s.db.QueryContext(ctx, entrySelectPrefixed("e")+`
		FROM tm_fts f
		JOIN tm_entries e ON e.id = f.rowid
		WHERE tm_fts MATCH ? AND e.source_lang = ? AND e.target_lang = ?
		ORDER BY f.rank
		LIMIT ?
	`, query, sourceLang, targetLang, 3*k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		sim := Similarity(source, e.SourceText)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{Entry: *e, Similarity: sim, Type: MatchFuzzy})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// SemanticMatch performs a KNN lookup over source embeddings. Requires
// WithEmbedder; without it the lookup is a no-op.
func (s *Store) SemanticMatch(ctx context.Context, source, sourceLang, targetLang string, k int) ([]Match, error) {
	if s.embedder == nil {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{source})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.entry_id, v.distance,
			e.source_hash, e.source_text, e.target_text, e.source_lang, e.target_lang,
			e.domain, e.quality_score, e.use_count, e.context, e.project, e.origin,
			e.created_at, e.updated_at
		FROM vec_tm v
		JOIN tm_entries e ON e.id = v.entry_id
		WHERE v.embedding MATCH ? AND k = ?
			AND e.source_lang = ? AND e.target_lang = ?
		ORDER BY v.distance
	`, serializeFloat32(vecs[0]), k, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var distance float64
		if err := rows.Scan(&m.Entry.ID, &distance,
			&m.Entry.SourceHash, &m.Entry.SourceText, &m.Entry.TargetText,
			&m.Entry.SourceLang, &m.Entry.TargetLang, &m.Entry.Domain,
			&m.Entry.QualityScore, &m.Entry.UseCount,
			&m.Entry.Context, &m.Entry.Project, &m.Entry.Origin,
			&m.Entry.CreatedAt, &m.Entry.UpdatedAt); err != nil {
			return nil, err
		}
		m.Similarity = 1.0 - distance
		m.Type = MatchSemantic
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Stats holds counts of translation memory objects.
type Stats struct {
	Entries     int `json:"entries"`
	CacheRows   int `json:"cache_rows"`
	TotalReuses int `json:"total_reuses"`
}

// Stats returns segment and cache counts plus the aggregate reuse counter.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tm_entries").Scan(&stats.Entries); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunk_cache").Scan(&stats.CacheRows); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(use_count), 0) FROM tm_entries").Scan(&stats.TotalReuses); err != nil {
		return nil, err
	}
	return stats, nil
}

// --- helpers ---

const entrySelect = `
	SELECT id, source_hash, source_text, target_text, source_lang, target_lang,
		domain, quality_score, use_count, context, project, origin, created_at, updated_at`

func entrySelectPrefixed(alias string) string {
	cols := []string{"id", "source_hash", "source_text", "target_text", "source_lang",
		"target_lang", "domain", "quality_score", "use_count", "context", "project",
		"origin", "created_at", "updated_at"}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return "SELECT " + strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(&e.ID, &e.SourceHash, &e.SourceText, &e.TargetText,
		&e.SourceLang, &e.TargetLang, &e.Domain, &e.QualityScore, &e.UseCount,
		&e.Context, &e.Project, &e.Origin, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) indexEmbedding(ctx context.Context, id int64, source string) error {
	vecs, err := s.embedder.Embed(ctx, []string{source})
	if err != nil || len(vecs) == 0 {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_tm (entry_id, embedding) VALUES (?, ?)",
		id, serializeFloat32(vecs[0]))
	return err
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "at": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"for": true, "with": true, "by": true, "as": true, "that": true,
	"this": true, "it": true, "its": true, "from": true, "not": true,
}

// topKeywords picks the n longest distinct non-stopword tokens from
// text. Longer words carry more discriminative power for FTS seeding.
func topKeywords(text string, n int) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	sort.SliceStable(words, func(i, j int) bool {
		return len(words[i]) > len(words[j])
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
