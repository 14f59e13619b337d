// Package model holds the data types shared across ingestion and
// retrieval: Document, Chunk, ChunkMetadata, DocumentMetadata, and
// SearchResult.
package model

import "time"

// Document identifies a single ingested source file by the content hash
// of its bytes. Re-ingesting the same path with different content is a
// new Document; re-ingesting identical content re-runs the pipeline and
// upserts onto the same document row and chunk ids.
type Document struct {
	Hash        string
	Path        string
	PageCount   int
	IngestedAt  time.Time
	ChunkCount  int
}

// NumericRange is a {min, max} pair extracted for one metric mentioned in
// a chunk, e.g. "variable cost per ton" -> {22.8, 23.6}.
type NumericRange struct {
	Min float64
	Max float64
}

// DataFormat classifies the shape of the source content a chunk was
// extracted from.
type DataFormat string

const (
	DataFormatTable     DataFormat = "table"
	DataFormatNarrative DataFormat = "narrative"
	DataFormatChart     DataFormat = "chart"
)

// ChunkMetadata is the per-chunk structured metadata C3 extracts. Every
// field is optional: a zero value means extraction did not populate it,
// never that the value is literally empty/zero in the source document.
type ChunkMetadata struct {
	CompanyName      string
	BusinessUnit     string
	MetricCategory   string
	MetricType       string
	TimePeriod       string
	GeographicRegion string
	Currency         string
	ReportType       string
	DataFormat       DataFormat
	SemanticSummary  string
	KeyEntities      []string
	NumericRanges    map[string]NumericRange
	FiscalPeriod     string
	DepartmentName   string
}

// DocumentMetadata is the per-document metadata C3 extracts once and
// caches by document fingerprint.
type DocumentMetadata struct {
	FiscalPeriod   string
	CompanyName    string
	DepartmentName string
}

// Chunk is the unit of retrieval: a bounded span of text (or a table
// part) owned by one Document, identified by a stable id, indexed in the
// vector store, the structured store, and the BM25 index.
type Chunk struct {
	ID           string // deterministic UUID derived from (document hash, ordinal)
	DocumentID   string // Document.Hash
	Ordinal      int    // dense, monotonic per document
	Text         string
	TokenCount   int
	PageNumbers  []int // usually one page; multiple for a table spanning pages
	IsTable      bool
	TablePart    string // e.g. "2 of 5"; empty when the table fit in one chunk
	TableCaption string
	ContentHash  string
	Metadata     ChunkMetadata
}

// SearchSource names which index produced a SearchResult.
type SearchSource string

const (
	SourceVector SearchSource = "vector"
	SourceSQL    SearchSource = "sql"
)

// Citation is the (document, page[, table part]) triple attached to every
// returned result for attribution.
type Citation struct {
	DocumentName string
	PageNumber   int
	TablePart    string
}

// SearchResult is a transient, per-query hit from one index, before or
// after fusion. RawScore is the source index's native score; FusedScore is
// populated once C11 has run.
type SearchResult struct {
	ChunkID     string
	DocumentID  string
	Text        string
	Source      SearchSource
	RawScore    float64
	PageNumber  int
	FusedScore  float64
	Citation    Citation
	IsTable     bool
	Metadata    ChunkMetadata
}
