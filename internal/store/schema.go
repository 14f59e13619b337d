package store

import "fmt"

// schemaSQL returns the DDL for the two adapters (C5, C6) sharing this
// *sql.DB. chunk_id is the application-level deterministic UUID (§3); id
// is an internal integer rowid used to key the vec0 and FTS5 virtual
// tables, which require integer rowids.
//
// The structured store's chunks table plays the role of the relational
// store named in §4.6: a content_tsv/GIN full-text column is expressed
// here as an FTS5 virtual table with the porter/unicode61 tokenizer —
// SQLite's equivalent full-text mechanism — kept in sync via triggers,
// with composite/single-column indexes recreated against the metadata
// columns.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    content_hash TEXT NOT NULL UNIQUE,
    path TEXT NOT NULL,
    page_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'processing',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    chunk_id TEXT NOT NULL UNIQUE,
    document_id TEXT NOT NULL REFERENCES documents(content_hash) ON DELETE CASCADE,
    chunk_ordinal INTEGER NOT NULL,
    content TEXT NOT NULL,
    page_number INTEGER NOT NULL,
    page_numbers JSON,
    is_table BOOLEAN NOT NULL DEFAULT 0,
    table_part TEXT,
    table_caption TEXT,
    content_hash TEXT NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,

    company_name TEXT,
    business_unit TEXT,
    metric_category TEXT,
    metric_type TEXT,
    time_period TEXT,
    geographic_region TEXT,
    currency TEXT,
    report_type TEXT,
    data_format TEXT,
    semantic_summary TEXT,
    key_entities JSON,
    numeric_ranges JSON,
    fiscal_period TEXT,
    department_name TEXT,

    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_rowid INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    content,
    table_caption,
    content='chunks',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, content, table_caption) VALUES (new.id, new.content, new.table_caption);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, table_caption) VALUES ('delete', old.id, old.content, old.table_caption);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, table_caption) VALUES ('delete', old.id, old.content, old.table_caption);
    INSERT INTO chunks_fts(rowid, content, table_caption) VALUES (new.id, new.content, new.table_caption);
END;

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_company_metric ON chunks(company_name, metric_category);
CREATE INDEX IF NOT EXISTS idx_chunks_time_period ON chunks(time_period);
CREATE INDEX IF NOT EXISTS idx_chunks_is_table ON chunks(is_table);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`, embeddingDim)
}
