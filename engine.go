// Package raglite wires the eleven components (C1-C11) into the two
// operations the external tool surface exposes: ingest_financial_document
// and query_financial_documents.
package raglite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Autopsias/raglite/internal/bm25"
	"github.com/Autopsias/raglite/internal/chunker"
	"github.com/Autopsias/raglite/internal/classifier"
	"github.com/Autopsias/raglite/internal/embedding"
	"github.com/Autopsias/raglite/internal/fusion"
	"github.com/Autopsias/raglite/internal/ingest"
	"github.com/Autopsias/raglite/internal/llm"
	"github.com/Autopsias/raglite/internal/metadata"
	"github.com/Autopsias/raglite/internal/model"
	"github.com/Autopsias/raglite/internal/parser"
	"github.com/Autopsias/raglite/internal/retrieval"
	"github.com/Autopsias/raglite/internal/store"
)

// Engine is the main entry point: one instance owns the structured
// store, the BM25 index, and the two shared LLM clients, and exposes the
// two tool operations the external surface is specified against.
type Engine interface {
	// Ingest runs a document through Parse→Chunk→Extract→Embed→Upsert
	// and returns the observable counters for the call.
	Ingest(ctx context.Context, path string) (*ingest.Outcome, error)

	// Query classifies a question, fans out to the indexes the route
	// calls for, fuses the results, and returns them with citations.
	Query(ctx context.Context, question string, opts ...QueryOption) (*QueryResult, error)

	// Store returns the underlying structured store for diagnostic
	// access (e.g. listing ingested documents).
	Store() *store.Store

	// Close cleanly shuts down the engine, flushing the BM25 snapshot.
	Close() error
}

// QueryResult is the answer to one query_financial_documents call: the
// fused, cited search results plus the retrieval trace for diagnostics.
type QueryResult struct {
	Results []model.SearchResult
	Trace   retrieval.Trace
}

// QueryOption configures a single Query call, overriding the engine's
// defaults.
type QueryOption func(*queryOptions)

type queryOptions struct {
	topK          int
	filter        store.ChunkFilter
	routeOverride classifier.Route
}

// WithTopK overrides the default number of results to return.
func WithTopK(n int) QueryOption {
	return func(o *queryOptions) { o.topK = n }
}

// WithFilter restricts results to chunks matching the given metadata
// filter.
func WithFilter(f store.ChunkFilter) QueryOption {
	return func(o *queryOptions) { o.filter = f }
}

// WithRoute forces a classification route instead of running the
// classifier, mainly useful for tests and diagnostics.
func WithRoute(r classifier.Route) QueryOption {
	return func(o *queryOptions) { o.routeOverride = r }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	bm25      *bm25.Index
	bm25Path  string
	chatLLM   llm.Provider
	embedLLM  llm.Provider
	orch      *ingest.Orchestrator
	retriever *retrieval.Engine
}

// New creates a new RAGLite engine from the given configuration: it opens
// the structured store, loads the on-disk BM25 snapshot (starting empty
// when none exists), and
// constructs the shared chat and embedding providers exactly once —
// neither is ever re-created per request.
func New(cfg Config) (Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s, err := store.New(cfg.DBPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	bm25Path := cfg.DBPath + ".bm25.gob"
	idx := bm25.New()
	if err := idx.LoadFromFile(bm25Path); err != nil {
		s.Close()
		return nil, fmt.Errorf("loading bm25 snapshot: %w", err)
	}

	counter, err := chunker.NewTiktokenCounter(cfg.Chat.Model)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating token counter: %w", err)
	}

	ck := chunker.New(chunker.Config{
		ChunkSize:      cfg.ChunkSize,
		Overlap:        cfg.ChunkOverlap,
		MaxTableTokens: cfg.MaxTableTokens,
		SentenceSlack:  64,
	}, counter)

	ex := metadata.New(chatLLM, metadata.Config{
		ChunkConcurrency: cfg.MetadataConcurrency,
		ChunkTimeout:     cfg.MetadataTimeout,
		ChunkRetries:     cfg.MetadataRetries,
		DocTimeout:       cfg.MetadataTimeout,
		DocInputTokens:   2000,
	})

	em := embedding.New(embedLLM, embedding.Config{
		BatchSize: cfg.EmbeddingBatchSize,
		Dim:       cfg.EmbeddingDim,
		Timeout:   cfg.EmbeddingTimeout,
	})

	orch := ingest.New(&parser.PDFParser{}, ck, ex, em, s, idx, bm25Path)

	fcfg := fusion.Config{Mode: fusion.Mode(cfg.FusionMode), Alpha: cfg.HybridAlpha, RRFK: cfg.RRFK}
	retriever := retrieval.New(s, idx, em, retrieval.Config{
		HybridDeadline: cfg.HybridDeadline,
		Fusion:         fcfg,
	})

	return &engine{
		cfg:       cfg,
		store:     s,
		bm25:      idx,
		bm25Path:  bm25Path,
		chatLLM:   chatLLM,
		embedLLM:  embedLLM,
		orch:      orch,
		retriever: retriever,
	}, nil
}

func (e *engine) Ingest(ctx context.Context, path string) (*ingest.Outcome, error) {
	out, err := e.orch.Ingest(ctx, path)
	if err != nil {
		return nil, newToolError(classifyIngestError(err), "ingestion failed", err)
	}
	return out, nil
}

// classifyIngestError maps an ingestion failure to the error taxonomy's
// ParseError/ChunkingError/StorageError kinds by which pipeline stage the
// orchestrator's wrapped error names; everything else (structured
// upsert, embedding insert, BM25 rebuild) is a storage-layer failure.
func classifyIngestError(err error) ErrorKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ingest: parse:") || strings.Contains(msg, "ingest: reading"):
		return KindParseError
	case strings.Contains(msg, "ingest: chunk:"):
		return KindChunkingError
	default:
		return KindStorageError
	}
}

func (e *engine) Query(ctx context.Context, question string, opts ...QueryOption) (*QueryResult, error) {
	if question == "" {
		return nil, ErrEmptyQuery
	}
	if len(question) > e.cfg.MaxQueryLength {
		return nil, ErrQueryTooLong
	}

	options := &queryOptions{topK: e.cfg.TopK}
	for _, o := range opts {
		o(options)
	}

	resp, err := e.retriever.Search(ctx, retrieval.Request{
		Query:         question,
		TopK:          options.topK,
		Filter:        options.filter,
		RouteOverride: options.routeOverride,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrBothIndexesDown) {
			return nil, newToolError(KindQueryError, "both vector and structured stores are unavailable", ErrBothIndexesDown)
		}
		return nil, newToolError(KindQueryError, "retrieval failed", err)
	}

	if len(resp.Trace.OrphanedChunks) > 0 {
		slog.Warn("raglite: query excluded orphaned chunks",
			"error", ErrOrphanedChunk, "chunk_ids", resp.Trace.OrphanedChunks)
	}

	return &QueryResult{Results: resp.Results, Trace: resp.Trace}, nil
}

func (e *engine) Store() *store.Store {
	return e.store
}

func (e *engine) Close() error {
	if err := e.bm25.SaveToFile(e.bm25Path); err != nil {
		return fmt.Errorf("saving bm25 snapshot: %w", err)
	}
	return e.store.Close()
}
