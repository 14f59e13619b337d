package bm25

import (
	"path/filepath"
	"testing"
)

func TestTokenizeLowercasesAndPreservesStopwords(t *testing.T) {
	toks := Tokenize("The Variable Cost, per Ton!")
	want := []string{"the", "variable", "cost", "per", "ton"}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token %d: got %q want %q", i, toks[i], want[i])
		}
	}
}

func TestSearchRanksByTermFrequency(t *testing.T) {
	idx := New()
	idx.Build([]Doc{
		{ChunkID: "a", Tokens: Tokenize("variable cost per ton rose")},
		{ChunkID: "b", Tokens: Tokenize("headcount rose this quarter")},
		{ChunkID: "c", Tokens: Tokenize("variable cost variable cost variable cost")},
	})

	results := idx.Search(Tokenize("variable cost"), 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 matching docs, got %d", len(results))
	}
	if results[0].ChunkID != "c" {
		t.Errorf("expected doc c (higher term frequency) to rank first, got %q", results[0].ChunkID)
	}
}

func TestSearchRespectsTopK(t *testing.T) {
	idx := New()
	idx.Build([]Doc{
		{ChunkID: "a", Tokens: Tokenize("revenue grew")},
		{ChunkID: "b", Tokens: Tokenize("revenue declined")},
		{ChunkID: "c", Tokens: Tokenize("revenue flat")},
	})

	results := idx.Search(Tokenize("revenue"), 2)
	if len(results) != 2 {
		t.Fatalf("expected top-2, got %d", len(results))
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	idx := New()
	idx.Build([]Doc{
		{ChunkID: "a", Tokens: Tokenize("variable cost per ton")},
	})

	path := filepath.Join(t.TempDir(), "bm25.gob")
	if err := idx.SaveToFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected 1 doc after load, got %d", loaded.Len())
	}

	results := loaded.Search(Tokenize("variable cost"), 5)
	if len(results) != 1 || results[0].ChunkID != "a" {
		t.Fatalf("expected doc a after reload, got %+v", results)
	}
}

func TestLoadFromMissingFileIsNotAnError(t *testing.T) {
	idx := New()
	if err := idx.LoadFromFile(filepath.Join(t.TempDir(), "missing.gob")); err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d docs", idx.Len())
	}
}
