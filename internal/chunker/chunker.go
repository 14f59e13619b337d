// Package chunker implements C2: it converts parser output into chunks
// under a token budget, preserving tables intact when they fit and
// splitting them row-aligned with header repetition otherwise.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/Autopsias/raglite/internal/model"
	"github.com/Autopsias/raglite/internal/parser"
)

// chunkNamespace is a fixed namespace UUID used to derive deterministic
// chunk ids from (document_hash, chunk_ordinal), so re-ingesting
// identical content always produces identical chunk ids (idempotence,
// §8).
var chunkNamespace = uuid.MustParse("5b1f7b9e-2b7e-4a7b-9f3e-2a1b6c7d8e9f")

// Config configures the chunking policy. Defaults mirror spec §6.
type Config struct {
	ChunkSize      int // tokens, non-table chunks
	Overlap        int // tokens
	MaxTableTokens int
	SentenceSlack  int // not read by the text splitter: windows always end on a sentence boundary
}

func DefaultConfig() Config {
	return Config{ChunkSize: 512, Overlap: 50, MaxTableTokens: 4096, SentenceSlack: 64}
}

// Chunker converts a ParsedElement stream into an ordered list of chunks.
type Chunker struct {
	cfg     Config
	counter Counter
}

func New(cfg Config, counter Counter) *Chunker {
	return &Chunker{cfg: cfg, counter: counter}
}

// Chunk converts elements into chunks owned by documentHash. Chunk
// ordinals are assigned densely and monotonically in source order
// (invariant 2). An empty element list yields an empty chunk list
// (boundary case, §8).
func (c *Chunker) Chunk(elements []parser.ParsedElement, documentHash string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	ordinal := 0
	pendingHeading := ""

	next := func() int {
		o := ordinal
		ordinal++
		return o
	}

	for _, el := range elements {
		switch el.Type {
		case parser.ElementHeading:
			if el.Heading == nil {
				return nil, fmt.Errorf("chunker: heading element missing payload: %w", errMissingPage)
			}
			pendingHeading = el.Heading.Text

		case parser.ElementTable:
			if el.Table == nil {
				return nil, fmt.Errorf("chunker: table element missing payload: %w", errMissingPage)
			}
			if el.Table.PageNumber == 0 {
				return nil, fmt.Errorf("chunker: table element missing page number: %w", errMissingPage)
			}
			parts := splitTable(*el.Table, c.cfg.MaxTableTokens, c.counter)
			pages := tablePages(*el.Table)
			for _, p := range parts {
				ord := next()
				chunks = append(chunks, model.Chunk{
					ID:           chunkID(documentHash, ord),
					DocumentID:   documentHash,
					Ordinal:      ord,
					Text:         p.text,
					TokenCount:   c.counter.Count(p.text),
					PageNumbers:  pages,
					IsTable:      true,
					TablePart:    p.part,
					TableCaption: el.Table.Caption,
					ContentHash:  contentHash(p.text),
				})
			}

		case parser.ElementText:
			if el.Text == nil {
				return nil, fmt.Errorf("chunker: text element missing payload: %w", errMissingPage)
			}
			if el.Text.PageNumber == 0 {
				return nil, fmt.Errorf("chunker: text element missing page number: %w", errMissingPage)
			}
			fragments := c.splitText(el.Text.Text, pendingHeading)
			pendingHeading = ""
			for _, frag := range fragments {
				ord := next()
				chunks = append(chunks, model.Chunk{
					ID:          chunkID(documentHash, ord),
					DocumentID:  documentHash,
					Ordinal:     ord,
					Text:        frag,
					TokenCount:  c.counter.Count(frag),
					PageNumbers: []int{el.Text.PageNumber},
					ContentHash: contentHash(frag),
				})
			}
		}
	}

	return chunks, nil
}

func tablePages(t parser.Table) []int {
	pages := []int{t.PageNumber}
	pages = append(pages, t.ContinuationPageNumbers...)
	return pages
}

func chunkID(documentHash string, ordinal int) string {
	name := fmt.Sprintf("%s:%d", documentHash, ordinal)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
