// Package metadata implements C3: one shared-client document-metadata
// call per document (cached by fingerprint) plus a bounded-concurrency
// fan-out of per-chunk metadata calls, all through the same long-lived
// LLM client. Constructing a client per call is the one pattern this
// package is built to avoid — see internal/llm, whose client lives for
// the process's lifetime and is simply passed in here.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Autopsias/raglite/internal/llm"
	"github.com/Autopsias/raglite/internal/model"
)

// Config tunes extraction concurrency, timeouts, and retries. Defaults
// mirror §6.
type Config struct {
	ChunkConcurrency int
	ChunkTimeout     time.Duration
	ChunkRetries     int
	DocTimeout       time.Duration
	DocInputTokens   int // approx. input budget for the document-metadata prompt
}

func DefaultConfig() Config {
	return Config{
		ChunkConcurrency: 20,
		ChunkTimeout:     30 * time.Second,
		ChunkRetries:     2,
		DocTimeout:       30 * time.Second,
		DocInputTokens:   2000,
	}
}

// Extractor calls a shared llm.Provider to populate DocumentMetadata and
// ChunkMetadata. Safe for concurrent use.
type Extractor struct {
	client llm.Provider
	cfg    Config

	mu       sync.Mutex
	docCache map[string]model.DocumentMetadata
}

func New(client llm.Provider, cfg Config) *Extractor {
	return &Extractor{client: client, cfg: cfg, docCache: make(map[string]model.DocumentMetadata)}
}

// ExtractDocumentMetadata returns the cached result for fingerprint if
// present; otherwise issues one LLM call and caches the outcome,
// including an empty result on failure, so a flaky document is not
// retried on every chunk that shares its fingerprint.
func (e *Extractor) ExtractDocumentMetadata(ctx context.Context, firstNTokensText, fingerprint string) model.DocumentMetadata {
	e.mu.Lock()
	if cached, ok := e.docCache[fingerprint]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	result := e.callDocumentMetadata(ctx, firstNTokensText)

	e.mu.Lock()
	e.docCache[fingerprint] = result
	e.mu.Unlock()

	return result
}

func (e *Extractor) callDocumentMetadata(ctx context.Context, text string) model.DocumentMetadata {
	if e.client == nil {
		slog.Warn("metadata: no LLM client configured, returning empty document metadata")
		return model.DocumentMetadata{}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.DocTimeout)
	defer cancel()

	prompt := fmt.Sprintf(documentMetadataPrompt, truncateWords(text, e.cfg.DocInputTokens))
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		slog.Warn("metadata: document metadata extraction failed, degrading to empty", "error", err)
		return model.DocumentMetadata{}
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		slog.Warn("metadata: document metadata response had no JSON object", "error", err)
		return model.DocumentMetadata{}
	}

	var out model.DocumentMetadata
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		slog.Warn("metadata: document metadata response was not valid JSON", "error", err)
		return model.DocumentMetadata{}
	}
	return out
}

// ExtractChunkMetadata extracts metadata for every chunk concurrently,
// bounded by cfg.ChunkConcurrency in-flight calls. A chunk whose
// extraction fails after retries is not an error for the batch: it
// yields a zero-value ChunkMetadata and the chunk is still ingested
// (§4.3). Results are returned in the same order as chunks.
func (e *Extractor) ExtractChunkMetadata(ctx context.Context, chunks []model.Chunk) []model.ChunkMetadata {
	results := make([]model.ChunkMetadata, len(chunks))
	if e.client == nil {
		slog.Warn("metadata: no LLM client configured, returning empty chunk metadata", "chunks", len(chunks))
		return results
	}

	sem := make(chan struct{}, e.cfg.ChunkConcurrency)
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(idx int, c model.Chunk) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			results[idx] = e.extractOneChunk(ctx, c)
		}(i, chunk)
	}

	wg.Wait()
	return results
}

func (e *Extractor) extractOneChunk(ctx context.Context, c model.Chunk) model.ChunkMetadata {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.ChunkRetries; attempt++ {
		meta, err := e.callChunkMetadata(ctx, c.Text)
		if err == nil {
			return meta
		}
		lastErr = err
		slog.Warn("metadata: chunk extraction attempt failed", "chunk_id", c.ID, "attempt", attempt, "error", err)
	}
	slog.Warn("metadata: chunk extraction exhausted retries, ingesting without metadata", "chunk_id", c.ID, "error", lastErr)
	return model.ChunkMetadata{}
}

func (e *Extractor) callChunkMetadata(ctx context.Context, text string) (model.ChunkMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ChunkTimeout)
	defer cancel()

	prompt := fmt.Sprintf(chunkMetadataPrompt, text)
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		return model.ChunkMetadata{}, fmt.Errorf("chat: %w", err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return model.ChunkMetadata{}, fmt.Errorf("extracting json: %w", err)
	}

	var out model.ChunkMetadata
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return model.ChunkMetadata{}, fmt.Errorf("unmarshaling: %w", err)
	}
	return out, nil
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}

const documentMetadataPrompt = `You are extracting document-level metadata from the opening of a financial report.

Return a single JSON object with exactly these fields (use "" for any field you cannot determine):
{"FiscalPeriod": "", "CompanyName": "", "DepartmentName": ""}

TEXT:
%s`

const chunkMetadataPrompt = `You are extracting structured metadata from one chunk of a financial report.

Return a single JSON object with exactly these fields (use "" or [] or {} for fields you cannot determine):
{
  "CompanyName": "", "BusinessUnit": "", "MetricCategory": "", "MetricType": "",
  "TimePeriod": "", "GeographicRegion": "", "Currency": "", "ReportType": "",
  "DataFormat": "", "SemanticSummary": "", "KeyEntities": [], "NumericRanges": {},
  "FiscalPeriod": "", "DepartmentName": ""
}

CHUNK:
%s`
