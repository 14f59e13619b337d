package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/Autopsias/raglite/internal/llm"
)

type fakeProvider struct {
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.embedFn(ctx, texts)
}

func TestEmbedPreservesOrderAcrossBatches(t *testing.T) {
	p := &fakeProvider{embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text)), 0}
		}
		return out, nil
	}}
	e := New(p, Config{BatchSize: 2, Dim: 2})

	results := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "e"})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	wantLens := []float32{1, 2, 3, 4, 1}
	for i, r := range results {
		if r.Vector[0] != wantLens[i] {
			t.Errorf("result %d: expected length marker %v, got %v", i, wantLens[i], r.Vector[0])
		}
		if r.Failed {
			t.Errorf("result %d: unexpected failure", i)
		}
	}
}

func TestEmbedFallsBackToZeroVectorOnBatchFailure(t *testing.T) {
	p := &fakeProvider{embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("rate limited")
	}}
	e := New(p, Config{BatchSize: 10, Dim: 3})

	results := e.Embed(context.Background(), []string{"a", "b"})
	for i, r := range results {
		if !r.Failed {
			t.Errorf("result %d: expected Failed=true", i)
		}
		for _, v := range r.Vector {
			if v != 0 {
				t.Errorf("result %d: expected zero vector, got %v", i, r.Vector)
			}
		}
	}
}

func TestEmbedHandlesPartialBatchSuccess(t *testing.T) {
	calls := 0
	p := &fakeProvider{embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 1 {
			return [][]float32{{1, 1}, {2, 2}}, nil
		}
		return nil, errors.New("second batch failed")
	}}
	e := New(p, Config{BatchSize: 2, Dim: 2})

	results := e.Embed(context.Background(), []string{"a", "b", "c"})
	if results[0].Failed || results[1].Failed {
		t.Errorf("expected first batch to succeed")
	}
	if !results[2].Failed {
		t.Errorf("expected second batch to fail")
	}
}
