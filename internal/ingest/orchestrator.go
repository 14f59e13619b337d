// Package ingest implements C8: it wires the parser, chunker, metadata
// extractor, embedder, and the three storage adapters into one
// Parse→Chunk→Extract→Embed→Upsert pipeline, enforcing that ordering and
// bounding metadata-extraction concurrency through the shared client.
// The structured upsert commits in its own transaction first; embeddings
// and the BM25 rebuild run afterwards, in parallel. A failure in that
// second phase marks the document failed but does not roll back the
// structured rows already committed.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Autopsias/raglite/internal/bm25"
	"github.com/Autopsias/raglite/internal/chunker"
	"github.com/Autopsias/raglite/internal/embedding"
	"github.com/Autopsias/raglite/internal/metadata"
	"github.com/Autopsias/raglite/internal/model"
	"github.com/Autopsias/raglite/internal/parser"
	"github.com/Autopsias/raglite/internal/store"
)

// Outcome reports the observable counters and timings a single Ingest
// call produced (§4.8).
type Outcome struct {
	DocumentHash      string
	ParsedElements    int
	TextChunks        int
	TableChunks       int
	ChunksWithMetadata int
	EmbeddingsOK      int
	EmbeddingsFailed  int
	TotalElapsed      time.Duration
	ParseElapsed      time.Duration
	ChunkElapsed      time.Duration
	MetadataElapsed   time.Duration
	EmbedElapsed      time.Duration
	UpsertElapsed     time.Duration
}

// Orchestrator wires together one instance of each C1-C7 component. All
// fields are safe for concurrent use by multiple goroutines calling
// Ingest on different documents; a single *store.Store and *bm25.Index
// are process-singletons shared across ingests, per §5.
type Orchestrator struct {
	parser    parser.Parser
	chunker   *chunker.Chunker
	extractor *metadata.Extractor
	embedder  *embedding.Embedder
	store     *store.Store
	bm25      *bm25.Index
	bm25Path  string
}

func New(p parser.Parser, c *chunker.Chunker, ex *metadata.Extractor, em *embedding.Embedder, st *store.Store, idx *bm25.Index, bm25Path string) *Orchestrator {
	return &Orchestrator{parser: p, chunker: c, extractor: ex, embedder: em, store: st, bm25: idx, bm25Path: bm25Path}
}

// Ingest runs the full pipeline for the file at path. On any failure the
// document is marked "failed" and the error is returned; chunks and
// embeddings already committed to the structured store by a prior
// successful Ingest of the same path are left untouched, since the
// chunker's deterministic ids mean a subsequent successful re-ingest
// simply upserts onto the same rows.
func (o *Orchestrator) Ingest(ctx context.Context, path string) (*Outcome, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	documentHash := hex.EncodeToString(sum[:])

	out := &Outcome{DocumentHash: documentHash}

	parseStart := time.Now()
	elements, err := o.parser.Parse(ctx, path)
	out.ParseElapsed = time.Since(parseStart)
	out.ParsedElements = len(elements)
	if err != nil {
		o.store.MarkDocumentStatus(ctx, documentHash, "failed")
		return out, fmt.Errorf("ingest: parse: %w", err)
	}

	if err := o.store.UpsertDocument(ctx, documentHash, path, maxPage(elements)); err != nil {
		return out, fmt.Errorf("ingest: registering document: %w", err)
	}

	chunkStart := time.Now()
	chunks, err := o.chunker.Chunk(elements, documentHash)
	out.ChunkElapsed = time.Since(chunkStart)
	if err != nil {
		o.store.MarkDocumentStatus(ctx, documentHash, "failed")
		return out, fmt.Errorf("ingest: chunk: %w", err)
	}
	for _, c := range chunks {
		if c.IsTable {
			out.TableChunks++
		} else {
			out.TextChunks++
		}
	}

	if len(chunks) == 0 {
		o.store.MarkDocumentStatus(ctx, documentHash, "ready")
		out.TotalElapsed = time.Since(start)
		return out, nil
	}

	metaStart := time.Now()
	o.attachMetadata(ctx, documentHash, chunks)
	out.MetadataElapsed = time.Since(metaStart)
	for _, c := range chunks {
		if c.Metadata.CompanyName != "" || c.Metadata.MetricCategory != "" || c.Metadata.SemanticSummary != "" {
			out.ChunksWithMetadata++
		}
	}

	embedStart := time.Now()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings := o.embedder.Embed(ctx, texts)
	out.EmbedElapsed = time.Since(embedStart)
	for _, e := range embeddings {
		if e.Failed {
			out.EmbeddingsFailed++
		} else {
			out.EmbeddingsOK++
		}
	}

	upsertStart := time.Now()
	rowIDs, err := o.store.UpsertChunks(ctx, documentHash, chunks)
	if err != nil {
		o.store.MarkDocumentStatus(ctx, documentHash, "failed")
		return out, fmt.Errorf("ingest: structured upsert: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i, rowID := range rowIDs {
			if err := o.store.InsertEmbedding(gctx, rowID, embeddings[i].Vector); err != nil {
				return fmt.Errorf("inserting embedding for chunk %s: %w", chunks[i].ID, err)
			}
		}
		return nil
	})
	g.Go(func() error {
		return o.rebuildBM25(gctx)
	})

	if err := g.Wait(); err != nil {
		o.store.MarkDocumentStatus(ctx, documentHash, "failed")
		return out, fmt.Errorf("ingest: upsert: %w", err)
	}
	out.UpsertElapsed = time.Since(upsertStart)

	if err := o.store.MarkDocumentStatus(ctx, documentHash, "ready"); err != nil {
		return out, fmt.Errorf("ingest: marking document ready: %w", err)
	}

	out.TotalElapsed = time.Since(start)
	slog.Info("ingest: completed", "document_hash", documentHash, "path", path,
		"chunks", len(chunks), "table_chunks", out.TableChunks,
		"embeddings_failed", out.EmbeddingsFailed, "elapsed", out.TotalElapsed)
	return out, nil
}

// attachMetadata extracts document-level metadata once, then chunk-level
// metadata concurrently, and fills any empty chunk-level field from the
// document-level result (the chunk-level extraction is the more specific
// source and wins on conflict).
func (o *Orchestrator) attachMetadata(ctx context.Context, documentHash string, chunks []model.Chunk) {
	var sample strings.Builder
	for _, c := range chunks {
		if sample.Len() > 8000 {
			break
		}
		sample.WriteString(c.Text)
		sample.WriteString("\n")
	}
	docMeta := o.extractor.ExtractDocumentMetadata(ctx, sample.String(), documentHash)

	chunkMetas := o.extractor.ExtractChunkMetadata(ctx, chunks)
	for i := range chunks {
		m := chunkMetas[i]
		if m.CompanyName == "" {
			m.CompanyName = docMeta.CompanyName
		}
		if m.FiscalPeriod == "" {
			m.FiscalPeriod = docMeta.FiscalPeriod
		}
		if m.DepartmentName == "" {
			m.DepartmentName = docMeta.DepartmentName
		}
		chunks[i].Metadata = m
	}
}

// rebuildBM25 re-tokenizes every chunk currently in the structured store
// (across all documents, not just the one just ingested) and atomically
// swaps the in-process index, then persists it so a restart doesn't
// need to rebuild from scratch.
func (o *Orchestrator) rebuildBM25(ctx context.Context) error {
	texts, err := o.store.AllChunkTexts(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus for bm25 rebuild: %w", err)
	}

	docs := make([]bm25.Doc, len(texts))
	for i, t := range texts {
		docs[i] = bm25.Doc{ChunkID: t.ChunkID, Tokens: bm25.Tokenize(t.Text)}
	}
	o.bm25.Build(docs)

	if o.bm25Path == "" {
		return nil
	}
	return o.bm25.SaveToFile(o.bm25Path)
}

func maxPage(elements []parser.ParsedElement) int {
	max := 0
	for _, el := range elements {
		var page int
		switch el.Type {
		case parser.ElementText:
			if el.Text != nil {
				page = el.Text.PageNumber
			}
		case parser.ElementTable:
			if el.Table != nil {
				page = el.Table.PageNumber
			}
		}
		if page > max {
			max = page
		}
	}
	return max
}
