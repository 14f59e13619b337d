// Package store implements C5 (vector store adapter) and C6 (structured
// store adapter) against a single SQLite database: sqlite-vec's vec0
// virtual table serves cosine-similarity KNN, and an FTS5 virtual table
// over the same chunks table serves full-text / metadata-filtered
// search. Both adapters share one *sql.DB so a re-ingest can stage new
// chunks and retire stale ones in one transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Autopsias/raglite/internal/model"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps the SQLite database backing the vector and structured
// adapters.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at dbPath and initialises the
// schema, including the sqlite-vec and FTS5 virtual tables sized for
// embeddingDim.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// sqlite-vec's virtual table backend is single-writer friendly but not
	// built for a large shared pool; keep the pool small.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error        { return s.db.Close() }
func (s *Store) DB() *sql.DB         { return s.db }
func (s *Store) EmbeddingDim() int   { return s.embeddingDim }

// --- Document operations ---

// UpsertDocument records (or refreshes) a document row keyed by its
// content hash. Re-ingesting the same hash updates path/page_count in
// place rather than creating a duplicate document.
func (s *Store) UpsertDocument(ctx context.Context, hash, path string, pageCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (content_hash, path, page_count, status)
		VALUES (?, ?, ?, 'processing')
		ON CONFLICT(content_hash) DO UPDATE SET
			path = excluded.path,
			page_count = excluded.page_count,
			status = 'processing',
			updated_at = CURRENT_TIMESTAMP
	`, hash, path, pageCount)
	return err
}

// MarkDocumentStatus updates a document's ingestion status ("ready",
// "failed", ...) once ingestion finishes or aborts.
func (s *Store) MarkDocumentStatus(ctx context.Context, hash, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE content_hash = ?",
		status, hash)
	return err
}

// GetDocument fetches a document by content hash along with its current
// chunk count. Returns sql.ErrNoRows if no such document exists.
func (s *Store) GetDocument(ctx context.Context, hash string) (*model.Document, error) {
	doc := &model.Document{}
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, path, page_count, created_at
		FROM documents WHERE content_hash = ?
	`, hash).Scan(&doc.Hash, &doc.Path, &doc.PageCount, &createdAt)
	if err != nil {
		return nil, err
	}
	doc.IngestedAt = createdAt

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", hash)
	if err := row.Scan(&doc.ChunkCount); err != nil {
		return nil, err
	}
	return doc, nil
}

// ChunkText is a minimal (id, text) projection used to rebuild the BM25
// index over the full corpus.
type ChunkText struct {
	ChunkID string
	Text    string
}

// AllChunkTexts returns every chunk's id and text across all documents,
// for a full BM25 rebuild.
func (s *Store) AllChunkTexts(ctx context.Context) ([]ChunkText, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id, content FROM chunks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkText
	for rows.Next() {
		var t ChunkText
		if err := rows.Scan(&t.ChunkID, &t.Text); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and all of its chunks, including
// their vector-store entries. FTS5 rows are retired by the chunks_ad
// trigger; vec_chunks has no such trigger (sqlite-vec virtual tables
// don't support them reliably), so it is cleaned up explicitly here.
func (s *Store) DeleteDocument(ctx context.Context, hash string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_rowid IN (
				SELECT id FROM chunks WHERE document_id = ?
			)
		`, hash); err != nil {
			return fmt.Errorf("deleting vector entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", hash); err != nil {
			return fmt.Errorf("deleting chunks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE content_hash = ?", hash); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		return nil
	})
}

// --- Chunk operations (C6: structured store) ---

// UpsertChunks stages chunks for documentHash and retires any chunk from
// a prior ingest of the same document that is no longer present. Chunk
// ids are deterministic (derived from document hash + ordinal), so an
// unchanged chunk upserts onto its existing row via ON CONFLICT rather
// than being deleted and recreated — this is what keeps its vec_chunks
// embedding link intact across a re-ingest that didn't actually change
// that chunk's content. Returns the internal rowid for each input chunk,
// in the same order, for the caller to pass to InsertEmbedding.
func (s *Store) UpsertChunks(ctx context.Context, documentHash string, chunks []model.Chunk) ([]int64, error) {
	ids := make([]int64, len(chunks))
	keep := make([]string, len(chunks))

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertChunkSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range chunks {
			keep[i] = c.ID
			pageNumbers, err := json.Marshal(c.PageNumbers)
			if err != nil {
				return fmt.Errorf("marshaling page numbers: %w", err)
			}
			keyEntities, err := json.Marshal(c.Metadata.KeyEntities)
			if err != nil {
				return fmt.Errorf("marshaling key entities: %w", err)
			}
			numericRanges, err := json.Marshal(c.Metadata.NumericRanges)
			if err != nil {
				return fmt.Errorf("marshaling numeric ranges: %w", err)
			}

			if _, err := stmt.ExecContext(ctx,
				c.ID, documentHash, c.Ordinal, c.Text, firstPage(c.PageNumbers), pageNumbers,
				c.IsTable, c.TablePart, c.TableCaption, c.ContentHash, c.TokenCount,
				nullable(c.Metadata.CompanyName), nullable(c.Metadata.BusinessUnit),
				nullable(c.Metadata.MetricCategory), nullable(c.Metadata.MetricType),
				nullable(c.Metadata.TimePeriod), nullable(c.Metadata.GeographicRegion),
				nullable(c.Metadata.Currency), nullable(c.Metadata.ReportType),
				nullable(string(c.Metadata.DataFormat)), nullable(c.Metadata.SemanticSummary),
				string(keyEntities), string(numericRanges),
				nullable(c.Metadata.FiscalPeriod), nullable(c.Metadata.DepartmentName),
			); err != nil {
				return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
			}

			var rowID int64
			if err := tx.QueryRowContext(ctx, "SELECT id FROM chunks WHERE chunk_id = ?", c.ID).Scan(&rowID); err != nil {
				return fmt.Errorf("reading rowid for chunk %s: %w", c.ID, err)
			}
			ids[i] = rowID
		}

		return pruneStaleChunks(ctx, tx, documentHash, keep)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

const upsertChunkSQL = `
INSERT INTO chunks (
	chunk_id, document_id, chunk_ordinal, content, page_number, page_numbers,
	is_table, table_part, table_caption, content_hash, token_count,
	company_name, business_unit, metric_category, metric_type,
	time_period, geographic_region, currency, report_type,
	data_format, semantic_summary, key_entities, numeric_ranges,
	fiscal_period, department_name
) VALUES (
	?, ?, ?, ?, ?, ?,
	?, ?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?, ?, ?,
	?, ?
)
ON CONFLICT(chunk_id) DO UPDATE SET
	chunk_ordinal = excluded.chunk_ordinal,
	content = excluded.content,
	page_number = excluded.page_number,
	page_numbers = excluded.page_numbers,
	is_table = excluded.is_table,
	table_part = excluded.table_part,
	table_caption = excluded.table_caption,
	content_hash = excluded.content_hash,
	token_count = excluded.token_count,
	company_name = excluded.company_name,
	business_unit = excluded.business_unit,
	metric_category = excluded.metric_category,
	metric_type = excluded.metric_type,
	time_period = excluded.time_period,
	geographic_region = excluded.geographic_region,
	currency = excluded.currency,
	report_type = excluded.report_type,
	data_format = excluded.data_format,
	semantic_summary = excluded.semantic_summary,
	key_entities = excluded.key_entities,
	numeric_ranges = excluded.numeric_ranges,
	fiscal_period = excluded.fiscal_period,
	department_name = excluded.department_name,
	updated_at = CURRENT_TIMESTAMP
`

// pruneStaleChunks deletes chunks belonging to documentHash that are not
// in keepIDs — the tail end of a document that shrank on re-ingest.
// vec_chunks rows for the pruned chunks are removed explicitly since the
// virtual table has no DELETE trigger wired to it.
func pruneStaleChunks(ctx context.Context, tx *sql.Tx, documentHash string, keepIDs []string) error {
	placeholders := make([]string, len(keepIDs))
	args := make([]interface{}, 0, len(keepIDs)+1)
	args = append(args, documentHash)
	for i, id := range keepIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	notIn := "1=1"
	if len(keepIDs) > 0 {
		notIn = "chunk_id NOT IN (" + strings.Join(placeholders, ",") + ")"
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM vec_chunks WHERE chunk_rowid IN (
			SELECT id FROM chunks WHERE document_id = ? AND %s
		)
	`, notIn), args...); err != nil {
		return fmt.Errorf("pruning stale vector entries: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM chunks WHERE document_id = ? AND %s", notIn,
	), args...); err != nil {
		return fmt.Errorf("pruning stale chunks: %w", err)
	}
	return nil
}

// --- Vector operations (C5) ---

// InsertEmbedding stores the embedding vector for one chunk, keyed by its
// internal rowid (vec0 requires an integer rowid; chunk_id, the
// application-level identity, lives one join away in chunks).
func (s *Store) InsertEmbedding(ctx context.Context, chunkRowID int64, embedding []float32) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(embedding), s.embeddingDim)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_chunks (chunk_rowid, embedding) VALUES (?, ?)",
		chunkRowID, serializeFloat32(embedding))
	return err
}

// ChunkFilter narrows a search to chunks matching the given metadata.
// Empty fields are ignored.
type ChunkFilter struct {
	CompanyName    string
	MetricCategory string
	TimePeriod     string
}

func (f ChunkFilter) whereClause(alias string) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.CompanyName != "" {
		clauses = append(clauses, alias+".company_name = ?")
		args = append(args, f.CompanyName)
	}
	if f.MetricCategory != "" {
		clauses = append(clauses, alias+".metric_category = ?")
		args = append(args, f.MetricCategory)
	}
	if f.TimePeriod != "" {
		clauses = append(clauses, alias+".time_period = ?")
		args = append(args, f.TimePeriod)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// VectorSearch returns the k nearest chunks to queryEmbedding by cosine
// distance, optionally narrowed by filter.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int, filter ChunkFilter) ([]model.SearchResult, error) {
	whereExtra, extraArgs := filter.whereClause("c")
	query := fmt.Sprintf(`
		SELECT c.chunk_id, c.document_id, c.content, c.page_number, c.is_table,
			c.table_part, v.distance, d.path, %s
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_rowid
		JOIN documents d ON d.content_hash = c.document_id
		WHERE v.embedding MATCH ? AND k = ?%s
		ORDER BY v.distance
	`, metadataSelectColumns("c"), whereExtra)

	args := append([]interface{}{serializeFloat32(queryEmbedding), k}, extraArgs...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var distance float64
		var docPath string
		scanTargets := append([]interface{}{
			&r.ChunkID, &r.DocumentID, &r.Text, &r.PageNumber, &r.IsTable,
			&r.Citation.TablePart, &distance, &docPath,
		}, metadataScanTargets(&r.Metadata)...)
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scanning vector result: %w", err)
		}
		r.Source = model.SourceVector
		r.RawScore = 1.0 - distance // cosine distance -> similarity
		r.Citation.PageNumber = r.PageNumber
		r.Citation.DocumentName = filepath.Base(docPath)
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchStructured runs a full-text query against chunk content and
// table captions, narrowed by filter. Every matching table chunk is
// listed ahead of every matching narrative chunk; FTS5 rank orders the
// rows within each of the two groups. The query text is passed to MATCH
// unchanged.
func (s *Store) SearchStructured(ctx context.Context, ftsQuery string, filter ChunkFilter, limit int) ([]model.SearchResult, error) {
	whereExtra, extraArgs := filter.whereClause("c")
	query := fmt.Sprintf(`
		SELECT c.chunk_id, c.document_id, c.content, c.page_number, c.is_table,
			c.table_part, f.rank, d.path, %s
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN documents d ON d.content_hash = c.document_id
		WHERE chunks_fts MATCH ?%s
		ORDER BY c.is_table DESC, f.rank
		LIMIT ?
	`, metadataSelectColumns("c"), whereExtra)

	args := append([]interface{}{ftsQuery}, extraArgs...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("structured search: %w", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var rank float64
		var docPath string
		scanTargets := append([]interface{}{
			&r.ChunkID, &r.DocumentID, &r.Text, &r.PageNumber, &r.IsTable,
			&r.Citation.TablePart, &rank, &docPath,
		}, metadataScanTargets(&r.Metadata)...)
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scanning structured result: %w", err)
		}
		r.Source = model.SourceSQL
		r.RawScore = -rank // FTS5 rank is negative; lower (more negative) is better
		r.Citation.PageNumber = r.PageNumber
		r.Citation.DocumentName = filepath.Base(docPath)
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetChunksByIDs hydrates full search-result rows for a set of chunk
// ids — used to attach text/metadata/citation to BM25-only hits that
// the structured store's full-text search didn't also surface.
func (s *Store) GetChunksByIDs(ctx context.Context, chunkIDs []string) (map[string]model.SearchResult, error) {
	if len(chunkIDs) == 0 {
		return map[string]model.SearchResult{}, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT c.chunk_id, c.document_id, c.content, c.page_number, c.is_table,
			c.table_part, d.path, %s
		FROM chunks c
		JOIN documents d ON d.content_hash = c.document_id
		WHERE c.chunk_id IN (%s)
	`, metadataSelectColumns("c"), strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching chunks by id: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.SearchResult, len(chunkIDs))
	for rows.Next() {
		var r model.SearchResult
		var docPath string
		scanTargets := append([]interface{}{
			&r.ChunkID, &r.DocumentID, &r.Text, &r.PageNumber, &r.IsTable, &r.Citation.TablePart, &docPath,
		}, metadataScanTargets(&r.Metadata)...)
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scanning chunk by id: %w", err)
		}
		r.Source = model.SourceSQL
		r.Citation.PageNumber = r.PageNumber
		r.Citation.DocumentName = filepath.Base(docPath)
		out[r.ChunkID] = r
	}
	return out, rows.Err()
}

// OrphanedChunkIDs returns the subset of chunkIDs that have a structured
// row but no matching vector entry — a violation of the 1:1 linkage
// invariant between the structured store and the vector store (§3
// invariant 1). The caller excludes these from its result set and logs
// them as `orphaned_chunk`.
func (s *Store) OrphanedChunkIDs(ctx context.Context, chunkIDs []string) ([]string, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.chunk_id
		FROM chunks c
		LEFT JOIN vec_chunks v ON v.chunk_rowid = c.id
		WHERE c.chunk_id IN (%s) AND v.chunk_rowid IS NULL
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("checking orphaned chunks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func metadataSelectColumns(alias string) string {
	cols := []string{
		"company_name", "business_unit", "metric_category", "metric_type",
		"time_period", "geographic_region", "currency", "report_type",
		"data_format", "semantic_summary", "key_entities", "numeric_ranges",
		"fiscal_period", "department_name",
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func metadataScanTargets(m *model.ChunkMetadata) []interface{} {
	return []interface{}{
		nullScan(&m.CompanyName), nullScan(&m.BusinessUnit),
		nullScan(&m.MetricCategory), nullScan(&m.MetricType),
		nullScan(&m.TimePeriod), nullScan(&m.GeographicRegion),
		nullScan(&m.Currency), nullScan(&m.ReportType),
		(*dataFormatScanner)(&m.DataFormat), nullScan(&m.SemanticSummary),
		&jsonScanner{target: &m.KeyEntities}, &jsonScanner{target: &m.NumericRanges},
		nullScan(&m.FiscalPeriod), nullScan(&m.DepartmentName),
	}
}

// nullScan adapts a *string field to accept SQL NULL as the zero value.
type nullStringTarget struct{ dst *string }

func nullScan(dst *string) sql.Scanner { return &nullStringTarget{dst} }

func (t *nullStringTarget) Scan(src interface{}) error {
	if src == nil {
		*t.dst = ""
		return nil
	}
	switch v := src.(type) {
	case string:
		*t.dst = v
	case []byte:
		*t.dst = string(v)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
	return nil
}

type dataFormatScanner model.DataFormat

func (d *dataFormatScanner) Scan(src interface{}) error {
	var s string
	if err := (&nullStringTarget{&s}).Scan(src); err != nil {
		return err
	}
	*d = dataFormatScanner(s)
	return nil
}

// jsonScanner decodes a JSON column (or NULL/empty) into an arbitrary
// pointer target, tolerating the empty-string sentinel UpsertChunks
// writes for an absent value.
type jsonScanner struct{ target interface{} }

func (j *jsonScanner) Scan(src interface{}) error {
	var raw string
	if err := (&nullStringTarget{&raw}).Scan(src); err != nil {
		return err
	}
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), j.target)
}

func firstPage(pages []int) int {
	if len(pages) == 0 {
		return 0
	}
	return pages[0]
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
