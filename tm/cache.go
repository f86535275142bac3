package tm

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
)

// CacheKey derives the content address of a chunk translation from the
// source text, the language pair, the translation mode and the domain.
func CacheKey(source, sourceLang, targetLang, mode, domain string) string {
	h := sha256.New()
	for _, part := range []string{strings.TrimSpace(source), sourceLang, targetLang, mode, domain} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheGet returns the cached translation for key, going through the
// in-memory LRU front before touching the database.
func (s *Store) CacheGet(ctx context.Context, key string) (string, bool, error) {
	if v, ok := s.front.Get(key); ok {
		return v, true, nil
	}

	var translation string
	err := s.db.QueryRowContext(ctx,
		"SELECT translation FROM chunk_cache WHERE cache_key = ?", key).Scan(&translation)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	s.front.Add(key, translation)
	return translation, true, nil
}

// CachePut stores a translation under key, overwriting any previous value.
func (s *Store) CachePut(ctx context.Context, key, translation string, quality float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunk_cache (cache_key, translation, quality_score)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			translation = excluded.translation,
			quality_score = excluded.quality_score
	`, key, translation, quality)
	if err != nil {
		return err
	}
	s.front.Add(key, translation)
	return nil
}

// CachePurge drops every cached chunk, both in memory and on disk.
func (s *Store) CachePurge(ctx context.Context) error {
	s.front.Purge()
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunk_cache")
	return err
}
