package chunker

import "strings"

type sentTok struct {
	text   string
	tokens int
}

// splitText converts one text block into a sequence of chunk texts using a
// sliding window of cfg.ChunkSize tokens with cfg.Overlap tokens carried
// between adjacent chunks. The window only ever breaks on a sentence
// boundary — the one documented exception is a single sentence that alone
// exceeds ChunkSize, which is emitted as its own over-budget chunk (§4.2
// edge cases) rather than split mid-sentence.
//
// heading, if non-empty, is prefixed as a context line onto the first
// emitted fragment only (§4.2: headings attach to "the next text chunk").
func (c *Chunker) splitText(text string, heading string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	rawSentences := splitSentences(text)
	if len(rawSentences) == 0 {
		rawSentences = []string{text}
	}

	sents := make([]sentTok, len(rawSentences))
	for i, s := range rawSentences {
		sents[i] = sentTok{text: s, tokens: c.counter.Count(s)}
	}

	var fragments []string
	n := len(sents)
	i := 0

	for i < n {
		tokens := 0
		j := i
		for j < n {
			st := sents[j].tokens
			if tokens > 0 && tokens+st > c.cfg.ChunkSize {
				break
			}
			tokens += st
			j++
			if tokens >= c.cfg.ChunkSize {
				break
			}
		}

		fragments = append(fragments, joinSentences(sents[i:j]))

		if j >= n {
			break
		}

		// Carry trailing sentences whose combined tokens fit within the
		// configured overlap budget into the next window.
		overlapStart := j
		overlapTokens := 0
		for overlapStart > i {
			st := sents[overlapStart-1].tokens
			if overlapTokens+st > c.cfg.Overlap {
				break
			}
			overlapTokens += st
			overlapStart--
		}
		if overlapStart <= i {
			overlapStart = j
		}
		i = overlapStart
	}

	if heading != "" && len(fragments) > 0 {
		fragments[0] = heading + "\n" + fragments[0]
	}

	return fragments
}

func joinSentences(sents []sentTok) string {
	parts := make([]string, len(sents))
	for i, s := range sents {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}
