package bm25

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
)

// persistedSnapshot is the gob-serializable projection of a snapshot.
// Postings are keyed by term directly since maps round-trip through gob
// without extra plumbing.
type persistedSnapshot struct {
	DocIDs    []string
	DocLens   []int
	AvgDocLen float64
	Postings  map[string][]posting
	DocCount  int
}

// SaveToFile persists the current snapshot to path, overwriting any
// existing file. Used after a rebuild so a restart doesn't need to
// re-tokenize the whole corpus before queries are servable again.
func (idx *Index) SaveToFile(path string) error {
	snap := idx.current.Load()
	p := persistedSnapshot{
		DocIDs:    snap.docIDs,
		DocLens:   snap.docLens,
		AvgDocLen: snap.avgDocLen,
		Postings:  snap.postings,
		DocCount:  snap.docCount,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("encoding bm25 snapshot: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing bm25 snapshot: %w", err)
	}
	return nil
}

// LoadFromFile replaces the index contents with the snapshot stored at
// path. A missing file is not an error: the index starts empty and the
// next ingest's Build call repopulates it.
func (idx *Index) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading bm25 snapshot: %w", err)
	}

	var p persistedSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return fmt.Errorf("decoding bm25 snapshot: %w", err)
	}

	idx.current.Store(&snapshot{
		docIDs:    p.DocIDs,
		docLens:   p.DocLens,
		avgDocLen: p.AvgDocLen,
		postings:  p.Postings,
		docCount:  p.DocCount,
	})
	return nil
}
