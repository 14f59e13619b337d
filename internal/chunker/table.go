package chunker

import (
	"fmt"
	"strings"

	"github.com/Autopsias/raglite/internal/parser"
)

// tablePart is one emitted table chunk before it is wrapped into a
// model.Chunk: its rendered text plus its "k of N" part tag.
type tablePart struct {
	text string
	part string // "k of N", empty when the table fit in a single chunk
}

// renderRow joins a table row's cells into one line of chunk text.
func renderRow(row []string) string {
	return strings.Join(row, " | ")
}

func renderRows(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = renderRow(r)
	}
	return strings.Join(lines, "\n")
}

// splitTable renders a parsed Table into one or more chunk texts, honoring
// max_table_tokens. Rows are never split mid-row; every split part begins
// with the same header row(s) (invariant 3, and the "header repetition"
// testable property). A single row (with header) that alone exceeds the
// budget is still emitted as a one-row over-budget chunk — logged by the
// caller, not treated as failure.
func splitTable(t parser.Table, maxTokens int, counter Counter) []tablePart {
	header := renderRows(t.HeaderRows)
	caption := t.Caption

	wholeBody := renderRows(t.Rows)
	whole := joinNonEmpty(caption, header, wholeBody)
	if counter.Count(whole) <= maxTokens {
		return []tablePart{{text: whole}}
	}

	// Every part repeats a caption line ("... (Part k of N)") and the
	// header rows; budget for both, sizing the tag by the row count, which
	// bounds N.
	tag := fmt.Sprintf("Part %d of %d", len(t.Rows), len(t.Rows))
	overheadCaption := tag
	if caption != "" {
		overheadCaption = caption + " (" + tag + ")"
	}
	baseTokens := counter.Count(joinNonEmpty(overheadCaption, header))

	// Greedily group rows into parts under the budget.
	type group struct{ rows [][]string }
	var groups []group
	var cur [][]string
	curTokens := baseTokens

	flush := func() {
		if len(cur) > 0 {
			groups = append(groups, group{rows: cur})
			cur = nil
			curTokens = baseTokens
		}
	}

	for _, row := range t.Rows {
		rowText := renderRow(row)
		rowTokens := counter.Count(rowText)

		if len(cur) > 0 && curTokens+rowTokens > maxTokens {
			flush()
		}
		cur = append(cur, row)
		curTokens += rowTokens
	}
	flush()

	if len(groups) == 0 {
		// No rows at all (header/caption only, still over budget).
		return []tablePart{{text: whole}}
	}

	parts := make([]tablePart, len(groups))
	n := len(groups)
	for i, g := range groups {
		partTag := fmt.Sprintf("Part %d of %d", i+1, n)
		partCaption := caption
		if partCaption != "" {
			partCaption = partCaption + " (" + partTag + ")"
		} else {
			partCaption = partTag
		}
		body := renderRows(g.rows)
		parts[i] = tablePart{
			text: joinNonEmpty(partCaption, header, body),
			part: fmt.Sprintf("%d of %d", i+1, n),
		}
	}
	return parts
}

func joinNonEmpty(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
