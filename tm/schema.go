package tm

import "fmt"

// schemaSQL returns the DDL for the translation memory database.
// embeddingDim controls the vec0 virtual table dimension; a dimension
// of zero skips the semantic index entirely.
func schemaSQL(embeddingDim int) string {
	base := `
-- Translation memory segments, deduplicated by content hash
CREATE TABLE IF NOT EXISTS tm_entries (
    id INTEGER PRIMARY KEY,
    source_hash TEXT NOT NULL UNIQUE,
    source_text TEXT NOT NULL,
    target_text TEXT NOT NULL,
    source_lang TEXT NOT NULL,
    target_lang TEXT NOT NULL,
    domain TEXT DEFAULT '',
    quality_score REAL DEFAULT 0,
    use_count INTEGER DEFAULT 0,
    context TEXT DEFAULT '',
    project TEXT DEFAULT '',
    origin TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search over source and target via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS tm_fts USING fts5(
    source_text,
    target_text,
    content='tm_entries',
    content_rowid='id',
    tokenize='porter unicode61'
);

-- FTS triggers to keep index in sync
CREATE TRIGGER IF NOT EXISTS tm_ai AFTER INSERT ON tm_entries BEGIN
    INSERT INTO tm_fts(rowid, source_text, target_text) VALUES (new.id, new.source_text, new.target_text);
END;
CREATE TRIGGER IF NOT EXISTS tm_ad AFTER DELETE ON tm_entries BEGIN
    INSERT INTO tm_fts(tm_fts, rowid, source_text, target_text) VALUES ('delete', old.id, old.source_text, old.target_text);
END;
CREATE TRIGGER IF NOT EXISTS tm_au AFTER UPDATE ON tm_entries BEGIN
    INSERT INTO tm_fts(tm_fts, rowid, source_text, target_text) VALUES ('delete', old.id, old.source_text, old.target_text);
    INSERT INTO tm_fts(rowid, source_text, target_text) VALUES (new.id, new.source_text, new.target_text);
END;

-- Chunk-level result cache, content-addressed, no fuzzy semantics
CREATE TABLE IF NOT EXISTS chunk_cache (
    cache_key TEXT PRIMARY KEY,
    translation TEXT NOT NULL,
    quality_score REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_tm_langs ON tm_entries(source_lang, target_lang);
CREATE INDEX IF NOT EXISTS idx_tm_updated ON tm_entries(updated_at);
`
	if embeddingDim > 0 {
		base += fmt.Sprintf(`
-- Semantic lookup over source embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_tm USING vec0(
    entry_id INTEGER PRIMARY KEY,
    embedding float[%d]
);
`, embeddingDim)
	}
	return base
}
