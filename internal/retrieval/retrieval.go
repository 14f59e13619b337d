// Package retrieval implements C10: classifies a query (C9), fans out to
// the vector store, structured store, and BM25 index as the
// classification demands, fuses the results (C11), and attaches
// citations.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Autopsias/raglite/internal/bm25"
	"github.com/Autopsias/raglite/internal/classifier"
	"github.com/Autopsias/raglite/internal/embedding"
	"github.com/Autopsias/raglite/internal/fusion"
	"github.com/Autopsias/raglite/internal/model"
	"github.com/Autopsias/raglite/internal/store"
)

// ErrBothIndexesDown is returned by Search when neither the vector store
// nor the structured store answered the query, per §4.10's "both
// unavailable" failure mode.
var ErrBothIndexesDown = errors.New("retrieval: both vector and structured indexes are unavailable")

// Config tunes the retrieval orchestrator. Defaults mirror §6.
type Config struct {
	HybridDeadline time.Duration
	Fusion         fusion.Config
}

func DefaultConfig() Config {
	return Config{HybridDeadline: 5 * time.Second, Fusion: fusion.DefaultConfig()}
}

// Request is one query_financial_documents call.
type Request struct {
	Query        string
	TopK         int
	Filter       store.ChunkFilter
	RouteOverride classifier.Route // empty means "classify normally"
}

// Trace records the per-query observability data §4.10 and §5 call for:
// which route fired, how many hits each index returned, per-stage
// latency, and whether a degradation occurred.
type Trace struct {
	Route           classifier.Route
	ClassifyElapsed time.Duration
	VectorElapsed   time.Duration
	SQLElapsed      time.Duration
	VectorHits      int
	SQLHits         int
	FusedHits       int

	// Degraded is set whenever the query did not run the route it was
	// classified into at full strength.
	Degraded bool

	// DegradedRetrieval names which side is unavailable, matching §7/§8's
	// `degraded_retrieval=<side>` contract literally: "vector" when the
	// vector store is down and results come from the structured store
	// alone, "sql" for the opposite direction. Empty when nothing
	// degraded, or when the degradation was the sql_empty_fallback case
	// below rather than an outage.
	DegradedRetrieval string

	// FallbackReason records the non-outage degradation case: an empty
	// SQL_ONLY result set falling back to vector search (§4.10, §7's
	// "upstream empty" / sql_empty_fallback).
	FallbackReason string

	// OrphanedChunks lists chunk ids excluded from this query's results
	// because they violated the 1:1 structured/vector linkage invariant
	// (§3 invariant 1, logged as `orphaned_chunk` per §7).
	OrphanedChunks []string
}

// Response is the result of one query.
type Response struct {
	Results []model.SearchResult
	Trace   Trace
}

// Engine wires the classifier, vector store, structured store, BM25
// index, and fusion stage together.
type Engine struct {
	store    *store.Store
	bm25     *bm25.Index
	embedder *embedding.Embedder
	cfg      Config
}

func New(st *store.Store, idx *bm25.Index, embedder *embedding.Embedder, cfg Config) *Engine {
	return &Engine{store: st, bm25: idx, embedder: embedder, cfg: cfg}
}

// Search runs the full C10 algorithm for one query.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	trace := Trace{Route: req.RouteOverride}

	classifyStart := time.Now()
	route := req.RouteOverride
	if route == "" {
		route = classifier.Classify(req.Query)
	}
	trace.ClassifyElapsed = time.Since(classifyStart)
	trace.Route = route

	var vecResults, sqlResults []model.SearchResult
	var err error

	switch route {
	case classifier.VectorOnly:
		vecResults, err = e.vectorSide(ctx, req, topK, &trace)
		if err != nil {
			slog.Warn("retrieval: vector store unavailable, degrading to sql-only", "error", err, "query", req.Query)
			trace.Degraded = true
			trace.DegradedRetrieval = "vector"
			sqlResults, err = e.sqlSide(ctx, req, topK, &trace)
			if err != nil {
				return nil, e.bothDownErr(err)
			}
		}

	case classifier.SQLOnly:
		sqlResults, err = e.sqlSide(ctx, req, topK, &trace)
		if err != nil {
			slog.Warn("retrieval: structured store unavailable, degrading to vector-only", "error", err, "query", req.Query)
			trace.Degraded = true
			trace.DegradedRetrieval = "sql"
			vecResults, err = e.vectorSide(ctx, req, topK, &trace)
			if err != nil {
				return nil, e.bothDownErr(err)
			}
		} else if len(sqlResults) == 0 {
			trace.Degraded = true
			trace.FallbackReason = "sql_empty_fallback"
			slog.Info("retrieval: sql_only returned no results, falling back to vector", "query", req.Query)
			vecResults, err = e.vectorSide(ctx, req, topK, &trace)
			if err != nil {
				return nil, e.bothDownErr(err)
			}
		}

	default: // HYBRID
		var vecFailed, sqlFailed bool
		vecResults, sqlResults, vecFailed, sqlFailed = e.hybridFanOut(ctx, req, topK, &trace)
		if vecFailed && sqlFailed {
			return nil, e.bothDownErr(fmt.Errorf("hybrid fan-out: neither side answered"))
		}
	}

	trace.VectorHits = len(vecResults)
	trace.SQLHits = len(sqlResults)

	fused := fusion.Fuse(e.cfg.Fusion, vecResults, sqlResults, topK)
	trace.FusedHits = len(fused)

	return &Response{Results: fused, Trace: trace}, nil
}

// bothDownErr logs the §4.10 "both unavailable" case and returns
// ErrBothIndexesDown so the caller can surface an empty result under an
// explicit error envelope instead of whatever partial state accumulated.
func (e *Engine) bothDownErr(cause error) error {
	slog.Error("retrieval: both vector and structured stores unavailable", "error", cause)
	return fmt.Errorf("%w: %v", ErrBothIndexesDown, cause)
}

// hybridFanOut issues the vector and sql searches concurrently, waiting
// for both to finish or for the shared deadline to pass — whichever
// happens first. A side that didn't finish in time is simply absent
// from the fusion input rather than failing the whole query. The two
// bool returns report whether each side failed (error or deadline),
// letting Search detect the both-unavailable case.
func (e *Engine) hybridFanOut(ctx context.Context, req Request, topK int, trace *Trace) ([]model.SearchResult, []model.SearchResult, bool, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.HybridDeadline)
	defer cancel()

	type sideResult struct {
		results []model.SearchResult
		err     error
	}
	vecCh := make(chan sideResult, 1)
	sqlCh := make(chan sideResult, 1)

	go func() {
		r, err := e.vectorSide(ctx, req, topK, trace)
		vecCh <- sideResult{r, err}
	}()
	go func() {
		r, err := e.sqlSide(ctx, req, topK, trace)
		sqlCh <- sideResult{r, err}
	}()

	var vec, sql []model.SearchResult
	var vecDone, sqlDone, vecFailed, sqlFailed bool

	for !(vecDone && sqlDone) {
		select {
		case r := <-vecCh:
			vecDone = true
			if r.err != nil {
				slog.Warn("retrieval: vector side failed during hybrid fan-out", "error", r.err)
				vecFailed = true
				trace.Degraded = true
				trace.DegradedRetrieval = "vector"
			} else {
				vec = r.results
			}
		case r := <-sqlCh:
			sqlDone = true
			if r.err != nil {
				slog.Warn("retrieval: sql side failed during hybrid fan-out", "error", r.err)
				sqlFailed = true
				trace.Degraded = true
				trace.DegradedRetrieval = "sql"
			} else {
				sql = r.results
			}
		case <-ctx.Done():
			if !vecDone {
				vecFailed = true
				trace.Degraded = true
				trace.DegradedRetrieval = "vector"
			}
			if !sqlDone {
				sqlFailed = true
				trace.Degraded = true
				trace.DegradedRetrieval = "sql"
			}
			return vec, sql, vecFailed, sqlFailed
		}
	}
	return vec, sql, vecFailed, sqlFailed
}

func (e *Engine) vectorSide(ctx context.Context, req Request, topK int, trace *Trace) ([]model.SearchResult, error) {
	start := time.Now()
	defer func() { trace.VectorElapsed = time.Since(start) }()

	embeddings := e.embedder.Embed(ctx, []string{req.Query})
	if len(embeddings) == 0 || embeddings[0].Failed {
		return nil, fmt.Errorf("embedding query failed")
	}

	return e.store.VectorSearch(ctx, embeddings[0].Vector, topK, req.Filter)
}

// sqlSide merges the structured store's full-text results with the
// in-process BM25 index's keyword results into one lexical result set —
// the two together are what §2's "Query: classifier → orchestrator
// fan-out → per-index search" description means by the non-vector side
// of a HYBRID or SQL_ONLY query, since the summary component table
// (§2) lists C10 as fanning out to C5/C6/C7.
func (e *Engine) sqlSide(ctx context.Context, req Request, topK int, trace *Trace) ([]model.SearchResult, error) {
	start := time.Now()
	defer func() { trace.SQLElapsed = time.Since(start) }()

	structured, err := e.store.SearchStructured(ctx, req.Query, req.Filter, topK)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]model.SearchResult, len(structured))
	for _, r := range structured {
		merged[r.ChunkID] = r
	}

	if e.bm25 != nil && e.bm25.Len() > 0 {
		keywordHits := e.bm25.Search(bm25.Tokenize(req.Query), topK)
		var missingIDs []string
		for _, hit := range keywordHits {
			if _, ok := merged[hit.ChunkID]; !ok {
				missingIDs = append(missingIDs, hit.ChunkID)
			}
		}
		if len(missingIDs) > 0 {
			hydrated, err := e.store.GetChunksByIDs(ctx, missingIDs)
			if err != nil {
				slog.Warn("retrieval: failed to hydrate bm25-only hits", "error", err)
			} else {
				for _, hit := range keywordHits {
					if r, ok := hydrated[hit.ChunkID]; ok {
						r.RawScore = hit.Score
						merged[hit.ChunkID] = r
					}
				}
			}
		}
	}

	if len(merged) > 0 {
		ids := make([]string, 0, len(merged))
		for id := range merged {
			ids = append(ids, id)
		}
		orphaned, err := e.store.OrphanedChunkIDs(ctx, ids)
		if err != nil {
			slog.Warn("retrieval: orphaned-chunk check failed", "error", err)
		}
		for _, id := range orphaned {
			slog.Warn("retrieval: excluding chunk with no matching vector entry",
				"event", "orphaned_chunk", "chunk_id", id)
			delete(merged, id)
			trace.OrphanedChunks = append(trace.OrphanedChunks, id)
		}
	}

	out := make([]model.SearchResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out, nil
}
