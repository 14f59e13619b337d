package metadata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Autopsias/raglite/internal/llm"
	"github.com/Autopsias/raglite/internal/model"
)

type fakeProvider struct {
	calls      int32
	chatFn     func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	maxInFlight int32
	inFlight    int32
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}
	return f.chatFn(ctx, req)
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestExtractDocumentMetadataCachesByFingerprint(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: `{"FiscalPeriod":"FY2024","CompanyName":"Acme","DepartmentName":""}`}, nil
	}}
	e := New(p, DefaultConfig())

	first := e.ExtractDocumentMetadata(context.Background(), "some report text", "fp1")
	second := e.ExtractDocumentMetadata(context.Background(), "some report text", "fp1")

	if first.CompanyName != "Acme" || second.CompanyName != "Acme" {
		t.Fatalf("expected CompanyName=Acme, got %+v / %+v", first, second)
	}
	if atomic.LoadInt32(&p.calls) != 1 {
		t.Errorf("expected exactly 1 LLM call due to caching, got %d", p.calls)
	}
}

func TestExtractDocumentMetadataDegradesGracefullyOnFailure(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, errors.New("connection refused")
	}}
	e := New(p, DefaultConfig())

	got := e.ExtractDocumentMetadata(context.Background(), "text", "fp1")
	if got != (model.DocumentMetadata{}) {
		t.Errorf("expected empty metadata on failure, got %+v", got)
	}
}

func TestExtractChunkMetadataRespectsSemaphore(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		time.Sleep(5 * time.Millisecond)
		return &llm.ChatResponse{Content: `{"CompanyName":"Acme"}`}, nil
	}}
	cfg := DefaultConfig()
	cfg.ChunkConcurrency = 3
	e := New(p, cfg)

	chunks := make([]model.Chunk, 20)
	for i := range chunks {
		chunks[i] = model.Chunk{ID: string(rune('a' + i)), Text: "some chunk text"}
	}

	results := e.ExtractChunkMetadata(context.Background(), chunks)
	if len(results) != 20 {
		t.Fatalf("expected 20 results, got %d", len(results))
	}
	for i, r := range results {
		if r.CompanyName != "Acme" {
			t.Errorf("result %d: expected CompanyName=Acme, got %+v", i, r)
		}
	}
	if atomic.LoadInt32(&p.maxInFlight) > 3 {
		t.Errorf("expected at most 3 in-flight calls, observed %d", p.maxInFlight)
	}
}

func TestExtractChunkMetadataFailsGracefullyPerChunk(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, errors.New("timeout")
	}}
	cfg := DefaultConfig()
	cfg.ChunkRetries = 1
	e := New(p, cfg)

	results := e.ExtractChunkMetadata(context.Background(), []model.Chunk{{ID: "c1", Text: "text"}})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].CompanyName != "" || results[0].MetricCategory != "" {
		t.Errorf("expected zero-value metadata after exhausted retries, got %+v", results[0])
	}
	if atomic.LoadInt32(&p.calls) != 2 { // 1 initial + 1 retry
		t.Errorf("expected 2 attempts (1 retry), got %d", p.calls)
	}
}
