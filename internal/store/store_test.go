//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Autopsias/raglite/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertDocumentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocument(ctx, "hash1", "/reports/q1.pdf", 10); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertDocument(ctx, "hash1", "/reports/q1-renamed.pdf", 12); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	doc, err := s.GetDocument(ctx, "hash1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Path != "/reports/q1-renamed.pdf" || doc.PageCount != 12 {
		t.Errorf("expected updated fields, got %+v", doc)
	}
}

func TestUpsertChunksAndVectorSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocument(ctx, "hash1", "/reports/q1.pdf", 1); err != nil {
		t.Fatalf("upsert document: %v", err)
	}

	chunks := []model.Chunk{
		{ID: "c1", DocumentID: "hash1", Ordinal: 0, Text: "Variable cost per ton was 23.2", PageNumbers: []int{1}},
		{ID: "c2", DocumentID: "hash1", Ordinal: 1, Text: "Headcount grew in Q1", PageNumbers: []int{2}},
	}

	ids, err := s.UpsertChunks(ctx, "hash1", chunks)
	if err != nil {
		t.Fatalf("upsert chunks: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 rowids, got %d", len(ids))
	}

	if err := s.InsertEmbedding(ctx, ids[0], []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert embedding 1: %v", err)
	}
	if err := s.InsertEmbedding(ctx, ids[1], []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("insert embedding 2: %v", err)
	}

	results, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 1, ChunkFilter{})
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Fatalf("expected nearest chunk c1, got %+v", results)
	}
	if results[0].Citation.DocumentName != "q1.pdf" {
		t.Errorf("expected citation document name q1.pdf, got %q", results[0].Citation.DocumentName)
	}
}

func TestUpsertChunksPrunesStaleRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocument(ctx, "hash1", "/reports/q1.pdf", 1); err != nil {
		t.Fatalf("upsert document: %v", err)
	}

	initial := []model.Chunk{
		{ID: "c1", DocumentID: "hash1", Ordinal: 0, Text: "first"},
		{ID: "c2", DocumentID: "hash1", Ordinal: 1, Text: "second"},
	}
	if _, err := s.UpsertChunks(ctx, "hash1", initial); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}

	reingested := []model.Chunk{
		{ID: "c1", DocumentID: "hash1", Ordinal: 0, Text: "first revised"},
	}
	if _, err := s.UpsertChunks(ctx, "hash1", reingested); err != nil {
		t.Fatalf("re-ingest upsert: %v", err)
	}

	doc, err := s.GetDocument(ctx, "hash1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.ChunkCount != 1 {
		t.Errorf("expected stale chunk c2 pruned, chunk count = %d", doc.ChunkCount)
	}
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocument(ctx, "hash1", "/reports/q1.pdf", 1); err != nil {
		t.Fatalf("upsert document: %v", err)
	}
	if _, err := s.UpsertChunks(ctx, "hash1", []model.Chunk{
		{ID: "c1", DocumentID: "hash1", Ordinal: 0, Text: "first"},
	}); err != nil {
		t.Fatalf("upsert chunks: %v", err)
	}

	if err := s.DeleteDocument(ctx, "hash1"); err != nil {
		t.Fatalf("delete document: %v", err)
	}

	if _, err := s.GetDocument(ctx, "hash1"); err == nil {
		t.Fatal("expected document to be gone")
	}
}

func TestSearchStructuredFiltersByMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocument(ctx, "hash1", "/reports/q1.pdf", 1); err != nil {
		t.Fatalf("upsert document: %v", err)
	}

	chunks := []model.Chunk{
		{ID: "c1", DocumentID: "hash1", Ordinal: 0, Text: "revenue grew",
			Metadata: model.ChunkMetadata{CompanyName: "Acme", MetricCategory: "revenue"}},
		{ID: "c2", DocumentID: "hash1", Ordinal: 1, Text: "revenue declined",
			Metadata: model.ChunkMetadata{CompanyName: "Globex", MetricCategory: "revenue"}},
	}
	if _, err := s.UpsertChunks(ctx, "hash1", chunks); err != nil {
		t.Fatalf("upsert chunks: %v", err)
	}

	results, err := s.SearchStructured(ctx, "revenue", ChunkFilter{CompanyName: "Acme"}, 10)
	if err != nil {
		t.Fatalf("search structured: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Fatalf("expected only Acme's chunk, got %+v", results)
	}
}
