package fusion

import (
	"testing"

	"github.com/Autopsias/raglite/internal/model"
)

func TestNormalizeEmptyBatch(t *testing.T) {
	out := normalize(nil)
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out)
	}
}

func TestNormalizeAllEqualScoresReturnsZeros(t *testing.T) {
	results := []model.SearchResult{{RawScore: 0.5}, {RawScore: 0.5}}
	out := normalize(results)
	for _, v := range out {
		if v != 0 {
			t.Errorf("expected all zeros for degenerate batch, got %v", out)
		}
	}
}

func TestFuseWeightedSumCombinesBothSides(t *testing.T) {
	vec := []model.SearchResult{{ChunkID: "a", RawScore: 0.9}, {ChunkID: "b", RawScore: 0.1}}
	sql := []model.SearchResult{{ChunkID: "a", RawScore: 1.0}}

	out := Fuse(DefaultConfig(), vec, sql, 10)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ChunkID != "a" {
		t.Errorf("expected chunk a (present in both indexes) to rank first, got %q", out[0].ChunkID)
	}
}

func TestFuseMonotonicityInVectorScore(t *testing.T) {
	low := Fuse(DefaultConfig(),
		[]model.SearchResult{{ChunkID: "a", RawScore: 0.1}, {ChunkID: "b", RawScore: 0.9}},
		nil, 10)
	high := Fuse(DefaultConfig(),
		[]model.SearchResult{{ChunkID: "a", RawScore: 0.9}, {ChunkID: "b", RawScore: 0.1}},
		nil, 10)

	var lowScoreA, highScoreA float64
	for _, r := range low {
		if r.ChunkID == "a" {
			lowScoreA = r.FusedScore
		}
	}
	for _, r := range high {
		if r.ChunkID == "a" {
			highScoreA = r.FusedScore
		}
	}
	if highScoreA < lowScoreA {
		t.Errorf("increasing a's raw score should not decrease its fused score: low=%v high=%v", lowScoreA, highScoreA)
	}
}

func TestFuseDedupesByChunkID(t *testing.T) {
	vec := []model.SearchResult{{ChunkID: "a", RawScore: 0.5, Metadata: model.ChunkMetadata{CompanyName: "Acme"}}}
	sql := []model.SearchResult{{ChunkID: "a", RawScore: 0.8, Metadata: model.ChunkMetadata{TimePeriod: "Q1"}}}

	out := Fuse(DefaultConfig(), vec, sql, 10)
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 deduped result, got %d", len(out))
	}
	if out[0].Metadata.CompanyName != "Acme" || out[0].Metadata.TimePeriod != "Q1" {
		t.Errorf("expected union-merged metadata, got %+v", out[0].Metadata)
	}
}

func TestFuseRRFMode(t *testing.T) {
	cfg := Config{Mode: RRF, RRFK: 60}
	vec := []model.SearchResult{{ChunkID: "a"}, {ChunkID: "b"}}
	sql := []model.SearchResult{{ChunkID: "b"}, {ChunkID: "a"}}

	out := Fuse(cfg, vec, sql, 10)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	// a ranks 1st in vec (rank0) and 2nd in sql (rank1); b ranks 2nd in vec
	// and 1st in sql -- symmetric, so scores should tie and ChunkID breaks it.
	if out[0].ChunkID != "a" {
		t.Errorf("expected deterministic tiebreak to chunk a, got %q", out[0].ChunkID)
	}
}

func TestFuseRespectsTopK(t *testing.T) {
	vec := []model.SearchResult{{ChunkID: "a", RawScore: 0.9}, {ChunkID: "b", RawScore: 0.5}, {ChunkID: "c", RawScore: 0.1}}
	out := Fuse(DefaultConfig(), vec, nil, 2)
	if len(out) != 2 {
		t.Fatalf("expected top-2, got %d", len(out))
	}
}
