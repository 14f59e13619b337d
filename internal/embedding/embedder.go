// Package embedding implements C4: batching chunk text through the
// shared LLM provider's embedding endpoint, preserving input order, and
// substituting a zero-vector for any batch that fails so a handful of
// bad chunks never blocks the rest of a document from being searchable.
package embedding

import (
	"context"
	"log/slog"
	"time"

	"github.com/Autopsias/raglite/internal/llm"
)

// Config tunes batching. Dim is the embedding vector width the provider
// is expected to return; it is also what a failed-call fallback vector
// is sized to, so every row written to the vector store is uniform.
type Config struct {
	BatchSize int
	Dim       int
	Timeout   time.Duration // per-batch; zero means no extra deadline beyond ctx
}

func DefaultConfig() Config {
	return Config{BatchSize: 32, Dim: 1024, Timeout: 60 * time.Second}
}

// Embedder batches calls to a shared llm.Provider.
type Embedder struct {
	client llm.Provider
	cfg    Config
}

func New(client llm.Provider, cfg Config) *Embedder {
	return &Embedder{client: client, cfg: cfg}
}

// Result pairs one input text's embedding with whether the call that
// produced it succeeded — a failed entry holds cfg.Dim zeros and has
// Failed set. The ingest orchestrator only counts failed entries; it
// writes their zero vectors to the vector store like any other, and
// vector search does not exclude them.
type Result struct {
	Vector  []float32
	Failed  bool
}

// Embed embeds all texts, preserving order, submitting cfg.BatchSize
// texts per call to the provider. Batches are submitted sequentially;
// the provider is expected to parallelize within a batch.
func (e *Embedder) Embed(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		callCtx := ctx
		if e.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
		}

		vectors, err := e.client.Embed(callCtx, batch)
		if err != nil {
			slog.Warn("embedding: batch failed, falling back to zero vectors", "batch_start", start, "batch_size", len(batch), "error", err)
			for i := range batch {
				results[start+i] = Result{Vector: make([]float32, e.cfg.Dim), Failed: true}
			}
			continue
		}

		for i, v := range vectors {
			if len(v) != e.cfg.Dim {
				slog.Warn("embedding: returned vector has unexpected dimension, falling back to zero vector",
					"expected_dim", e.cfg.Dim, "got_dim", len(v))
				results[start+i] = Result{Vector: make([]float32, e.cfg.Dim), Failed: true}
				continue
			}
			results[start+i] = Result{Vector: v}
		}
	}

	return results
}
