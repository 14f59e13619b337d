// Package bm25 implements C7: an in-process Okapi BM25 sparse index over
// the same chunk set held by the vector and structured stores. No
// library in the reference corpus provides keyword ranking outside of
// SQLite's own FTS5 (used by the structured store), so this index is
// hand-rolled against the standard library — the fusion stage (C11)
// needs a keyword signal that is independent of the structured store's
// ranking so HYBRID queries combine two genuinely different retrieval
// strategies rather than two views of the same one.
package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
)

// BM25 tuning constants (Okapi BM25, Robertson et al.).
const (
	k1 = 1.5
	b  = 0.75
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases and strips punctuation, preserving stopwords. The
// structured store's FTS5 search does not use this tokenizer: it receives
// the query text unchanged, and no stopwords are removed on that path
// either.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Doc is one entry in the corpus: a chunk id paired with its token
// stream.
type Doc struct {
	ChunkID string
	Tokens  []string
}

// Result is one scored hit from Search.
type Result struct {
	ChunkID string
	Score   float64
}

// snapshot is the immutable state backing one generation of the index.
// Readers holding a *snapshot never observe a rebuild in progress.
type snapshot struct {
	docIDs     []string
	docLens    []int
	avgDocLen  float64
	postings   map[string][]posting // term -> postings list
	docCount   int
}

type posting struct {
	DocIdx int
	Freq   int
}

// Index is a read-mostly BM25 index. Build replaces the active snapshot
// atomically; concurrent Search calls always see a complete, consistent
// generation.
type Index struct {
	current atomic.Pointer[snapshot]
}

// New returns an empty index.
func New() *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{postings: map[string][]posting{}})
	return idx
}

// Build replaces the index contents with corpus in one atomic swap.
// Existing Search calls in flight continue to see the prior snapshot to
// completion.
func (idx *Index) Build(corpus []Doc) {
	snap := &snapshot{
		docIDs:   make([]string, len(corpus)),
		docLens:  make([]int, len(corpus)),
		postings: make(map[string][]posting),
		docCount: len(corpus),
	}

	var totalLen int
	for i, doc := range corpus {
		snap.docIDs[i] = doc.ChunkID
		snap.docLens[i] = len(doc.Tokens)
		totalLen += len(doc.Tokens)

		freqs := make(map[string]int)
		for _, tok := range doc.Tokens {
			freqs[tok]++
		}
		for tok, freq := range freqs {
			snap.postings[tok] = append(snap.postings[tok], posting{DocIdx: i, Freq: freq})
		}
	}
	if len(corpus) > 0 {
		snap.avgDocLen = float64(totalLen) / float64(len(corpus))
	}

	idx.current.Store(snap)
}

// Search scores every document containing at least one query term and
// returns the top-k by descending BM25 score.
func (idx *Index) Search(queryTokens []string, topK int) []Result {
	snap := idx.current.Load()
	if snap == nil || snap.docCount == 0 {
		return nil
	}

	scores := make(map[int]float64)
	seen := make(map[string]bool)
	for _, term := range queryTokens {
		if seen[term] {
			continue
		}
		seen[term] = true

		list, ok := snap.postings[term]
		if !ok {
			continue
		}
		idf := inverseDocFreq(snap.docCount, len(list))
		for _, p := range list {
			dl := float64(snap.docLens[p.DocIdx])
			tf := float64(p.Freq)
			norm := tf * (k1 + 1)
			denom := tf + k1*(1-b+b*dl/snap.avgDocLen)
			scores[p.DocIdx] += idf * (norm / denom)
		}
	}

	results := make([]Result, 0, len(scores))
	for docIdx, score := range scores {
		results = append(results, Result{ChunkID: snap.docIDs[docIdx], Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Len reports how many documents are in the current snapshot.
func (idx *Index) Len() int {
	return idx.current.Load().docCount
}

func inverseDocFreq(totalDocs, docFreq int) float64 {
	if docFreq == 0 {
		return 0
	}
	// Okapi BM25 idf with the +1 smoothing term that keeps it non-negative
	// for terms appearing in most of the corpus.
	n := float64(totalDocs)
	df := float64(docFreq)
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}
