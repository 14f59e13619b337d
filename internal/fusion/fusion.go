// Package fusion implements C11: normalizing per-index scores, combining
// them by weighted sum (default) or reciprocal-rank fusion, and
// deduping by chunk id with a defined metadata-merge precedence.
package fusion

import (
	"sort"

	"github.com/Autopsias/raglite/internal/model"
)

// Mode selects the fusion strategy.
type Mode string

const (
	WeightedSum Mode = "weighted_sum"
	RRF         Mode = "rrf"
)

// Config tunes the fusion stage. Alpha weights the vector side in
// weighted-sum mode; RRFK is the reciprocal-rank-fusion constant.
type Config struct {
	Mode  Mode
	Alpha float64
	RRFK  int
}

func DefaultConfig() Config {
	return Config{Mode: WeightedSum, Alpha: 0.6, RRFK: 60}
}

// Fuse merges vector-source and sql-source results, dedupes by chunk id,
// and returns the top-k by descending fused score. Either input may be
// empty (a degraded single-index query still goes through fusion so its
// ordering and score scale match a HYBRID query's).
func Fuse(cfg Config, vectorResults, sqlResults []model.SearchResult, topK int) []model.SearchResult {
	switch cfg.Mode {
	case RRF:
		return fuseRRF(cfg, vectorResults, sqlResults, topK)
	default:
		return fuseWeightedSum(cfg, vectorResults, sqlResults, topK)
	}
}

func fuseWeightedSum(cfg Config, vectorResults, sqlResults []model.SearchResult, topK int) []model.SearchResult {
	normVector := normalize(vectorResults) // cosine scores are already in [0,1], but min-max them anyway
	normSQL := normalize(sqlResults)

	merged := make(map[string]*model.SearchResult)
	vecScore := make(map[string]float64)
	sqlScore := make(map[string]float64)

	for i, r := range vectorResults {
		cp := r
		cp.RawScore = normVector[i]
		merge(merged, cp)
		vecScore[r.ChunkID] = normVector[i]
	}
	for i, r := range sqlResults {
		cp := r
		cp.RawScore = normSQL[i]
		merge(merged, cp)
		sqlScore[r.ChunkID] = normSQL[i]
	}

	results := make([]model.SearchResult, 0, len(merged))
	for id, r := range merged {
		r.FusedScore = cfg.Alpha*vecScore[id] + (1-cfg.Alpha)*sqlScore[id]
		results = append(results, *r)
	}

	sortByFusedScore(results, vecScore)
	return truncate(results, topK)
}

func fuseRRF(cfg Config, vectorResults, sqlResults []model.SearchResult, topK int) []model.SearchResult {
	merged := make(map[string]*model.SearchResult)
	vecScore := make(map[string]float64)
	rrfScore := make(map[string]float64)

	for rank, r := range vectorResults {
		merge(merged, r)
		rrfScore[r.ChunkID] += 1.0 / float64(cfg.RRFK+rank+1)
		vecScore[r.ChunkID] = r.RawScore
	}
	for rank, r := range sqlResults {
		merge(merged, r)
		rrfScore[r.ChunkID] += 1.0 / float64(cfg.RRFK+rank+1)
	}

	results := make([]model.SearchResult, 0, len(merged))
	for id, r := range merged {
		r.FusedScore = rrfScore[id]
		results = append(results, *r)
	}

	sortByFusedScore(results, vecScore)
	return truncate(results, topK)
}

// merge folds r into the accumulator by chunk id. On a collision,
// non-empty metadata fields from the incoming result fill any still-zero
// field on the accumulated one; the vector-side result wins when both
// sides have already set a field, since it is processed first.
func merge(acc map[string]*model.SearchResult, r model.SearchResult) {
	existing, ok := acc[r.ChunkID]
	if !ok {
		cp := r
		acc[r.ChunkID] = &cp
		return
	}
	existing.Metadata = unionMergeMetadata(existing.Metadata, r.Metadata)
	if existing.Citation.PageNumber == 0 {
		existing.Citation = r.Citation
	}
}

func unionMergeMetadata(primary, secondary model.ChunkMetadata) model.ChunkMetadata {
	out := primary
	if out.CompanyName == "" {
		out.CompanyName = secondary.CompanyName
	}
	if out.BusinessUnit == "" {
		out.BusinessUnit = secondary.BusinessUnit
	}
	if out.MetricCategory == "" {
		out.MetricCategory = secondary.MetricCategory
	}
	if out.MetricType == "" {
		out.MetricType = secondary.MetricType
	}
	if out.TimePeriod == "" {
		out.TimePeriod = secondary.TimePeriod
	}
	if out.GeographicRegion == "" {
		out.GeographicRegion = secondary.GeographicRegion
	}
	if out.Currency == "" {
		out.Currency = secondary.Currency
	}
	if out.ReportType == "" {
		out.ReportType = secondary.ReportType
	}
	if out.DataFormat == "" {
		out.DataFormat = secondary.DataFormat
	}
	if out.SemanticSummary == "" {
		out.SemanticSummary = secondary.SemanticSummary
	}
	if len(out.KeyEntities) == 0 {
		out.KeyEntities = secondary.KeyEntities
	}
	if len(out.NumericRanges) == 0 {
		out.NumericRanges = secondary.NumericRanges
	}
	if out.FiscalPeriod == "" {
		out.FiscalPeriod = secondary.FiscalPeriod
	}
	if out.DepartmentName == "" {
		out.DepartmentName = secondary.DepartmentName
	}
	return out
}

// normalize min-max scales raw scores into [0,1]. An empty batch or a
// batch where every score is equal returns all zeros rather than
// dividing by zero.
func normalize(results []model.SearchResult) []float64 {
	out := make([]float64, len(results))
	if len(results) == 0 {
		return out
	}

	min, max := results[0].RawScore, results[0].RawScore
	for _, r := range results {
		if r.RawScore < min {
			min = r.RawScore
		}
		if r.RawScore > max {
			max = r.RawScore
		}
	}

	span := max - min
	if span == 0 {
		return out // all equal -> all zero
	}
	for i, r := range results {
		out[i] = (r.RawScore - min) / span
	}
	return out
}

// sortByFusedScore orders descending by fused score, breaking ties by
// vector-side score then by chunk id, which stands in for ordinal order
// since results carry no ordinal field of their own (the tiebreak only
// needs to be stable and deterministic, not ordinal-accurate).
func sortByFusedScore(results []model.SearchResult, vecScore map[string]float64) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		vi, vj := vecScore[results[i].ChunkID], vecScore[results[j].ChunkID]
		if vi != vj {
			return vi > vj
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func truncate(results []model.SearchResult, topK int) []model.SearchResult {
	if topK > 0 && len(results) > topK {
		return results[:topK]
	}
	return results
}
