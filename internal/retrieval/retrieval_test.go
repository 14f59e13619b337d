//go:build cgo

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Autopsias/raglite/internal/bm25"
	"github.com/Autopsias/raglite/internal/classifier"
	"github.com/Autopsias/raglite/internal/embedding"
	"github.com/Autopsias/raglite/internal/llm"
	"github.com/Autopsias/raglite/internal/model"
	"github.com/Autopsias/raglite/internal/store"
)

type fakeProvider struct {
	vector []float32
	err    error
}

func (f fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}

func (f fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func setup(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	return setupWithProvider(t, fakeProvider{vector: []float32{1, 0, 0}})
}

func setupWithProvider(t *testing.T, provider fakeProvider) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), 3)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.UpsertDocument(ctx, "hash1", "/r.pdf", 1); err != nil {
		t.Fatalf("upsert document: %v", err)
	}
	chunks := []model.Chunk{
		{ID: "c1", DocumentID: "hash1", Ordinal: 0, Text: "Variable cost per ton rose in Q1 2024", PageNumbers: []int{1}},
		{ID: "c2", DocumentID: "hash1", Ordinal: 1, Text: "Headcount grew across all regions", PageNumbers: []int{2}},
	}
	ids, err := st.UpsertChunks(ctx, "hash1", chunks)
	if err != nil {
		t.Fatalf("upsert chunks: %v", err)
	}
	if err := st.InsertEmbedding(ctx, ids[0], []float32{1, 0, 0}); err != nil {
		t.Fatalf("insert embedding: %v", err)
	}
	if err := st.InsertEmbedding(ctx, ids[1], []float32{0, 1, 0}); err != nil {
		t.Fatalf("insert embedding: %v", err)
	}

	idx := bm25.New()
	idx.Build([]bm25.Doc{
		{ChunkID: "c1", Tokens: bm25.Tokenize(chunks[0].Text)},
		{ChunkID: "c2", Tokens: bm25.Tokenize(chunks[1].Text)},
	})

	embedder := embedding.New(provider, embedding.Config{BatchSize: 10, Dim: 3})
	engine := New(st, idx, embedder, DefaultConfig())
	return engine, st
}

func TestSearchVectorOnly(t *testing.T) {
	engine, _ := setup(t)
	resp, err := engine.Search(context.Background(), Request{
		Query: "irrelevant text", TopK: 1, RouteOverride: classifier.VectorOnly,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ChunkID != "c1" {
		t.Fatalf("expected c1 as nearest vector match, got %+v", resp.Results)
	}
}

func TestSearchSQLOnlyFallsBackOnEmptyResults(t *testing.T) {
	engine, _ := setup(t)
	resp, err := engine.Search(context.Background(), Request{
		Query: "completely unrelated gibberish zzz", TopK: 5, RouteOverride: classifier.SQLOnly,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !resp.Trace.Degraded || resp.Trace.FallbackReason != "sql_empty_fallback" {
		t.Errorf("expected degradation to vector fallback, got trace %+v", resp.Trace)
	}
}

func TestSearchVectorOnlyDegradesToSQLOnEmbedFailure(t *testing.T) {
	engine, _ := setupWithProvider(t, fakeProvider{err: fmt.Errorf("embedder unreachable")})
	resp, err := engine.Search(context.Background(), Request{
		Query: "variable cost", TopK: 5, RouteOverride: classifier.VectorOnly,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !resp.Trace.Degraded || resp.Trace.DegradedRetrieval != "vector" {
		t.Errorf("expected degraded_retrieval=vector, got trace %+v", resp.Trace)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected sql-side results after degrading away from the vector store")
	}
}

func TestSearchSQLOnlyDegradesToVectorOnSQLError(t *testing.T) {
	engine, _ := setup(t)
	// An unbalanced quote is an FTS5 MATCH syntax error, simulating the
	// structured store being unreachable for this query.
	resp, err := engine.Search(context.Background(), Request{
		Query: `"`, TopK: 5, RouteOverride: classifier.SQLOnly,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !resp.Trace.Degraded || resp.Trace.DegradedRetrieval != "sql" {
		t.Errorf("expected degraded_retrieval=sql, got trace %+v", resp.Trace)
	}
}

func TestSearchBothIndexesDownReturnsEnvelope(t *testing.T) {
	engine, _ := setupWithProvider(t, fakeProvider{err: fmt.Errorf("embedder unreachable")})
	_, err := engine.Search(context.Background(), Request{
		Query: `"`, TopK: 5, RouteOverride: classifier.VectorOnly,
	})
	if !errors.Is(err, ErrBothIndexesDown) {
		t.Fatalf("expected ErrBothIndexesDown, got %v", err)
	}
}

func TestSearchExcludesOrphanedChunk(t *testing.T) {
	engine, st := setup(t)
	ctx := context.Background()

	// c3 has a structured row but no vector entry: a 1:1 linkage
	// violation (§3 invariant 1) that must be logged and excluded rather
	// than surfaced as a vector-less result.
	chunks := []model.Chunk{
		{ID: "c1", DocumentID: "hash1", Ordinal: 0, Text: "Variable cost per ton rose in Q1 2024", PageNumbers: []int{1}},
		{ID: "c2", DocumentID: "hash1", Ordinal: 1, Text: "Headcount grew across all regions", PageNumbers: []int{2}},
		{ID: "c3", DocumentID: "hash1", Ordinal: 2, Text: "Orphaned pipeline throughput discussion", PageNumbers: []int{3}},
	}
	if _, err := st.UpsertChunks(ctx, "hash1", chunks); err != nil {
		t.Fatalf("upsert chunks: %v", err)
	}

	resp, err := engine.Search(ctx, Request{
		Query: "orphaned pipeline throughput", TopK: 5, RouteOverride: classifier.SQLOnly,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range resp.Results {
		if r.ChunkID == "c3" {
			t.Fatalf("expected c3 excluded as an orphaned chunk, got %+v", resp.Results)
		}
	}
	found := false
	for _, id := range resp.Trace.OrphanedChunks {
		if id == "c3" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected c3 recorded in trace.OrphanedChunks, got %+v", resp.Trace.OrphanedChunks)
	}
}

func TestSearchHybridFusesBothSides(t *testing.T) {
	engine, _ := setup(t)
	resp, err := engine.Search(context.Background(), Request{
		Query: "variable cost", TopK: 5, RouteOverride: classifier.Hybrid,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one fused result")
	}
	if resp.Trace.VectorHits == 0 || resp.Trace.SQLHits == 0 {
		t.Errorf("expected both sides to contribute, got trace %+v", resp.Trace)
	}
}
