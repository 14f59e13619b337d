package parser

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser is the adapter over github.com/ledongthuc/pdf: the PDF-to-
// structured-document parser this package wraps. It is deliberately
// simple — real table-cell extraction and layout analysis is the kind of
// work a production system would delegate to a dedicated external parser
// (out of scope per the core's purpose and scope); this adapter's job is
// only to present that parser's output in the ParsedElement shape C2
// expects.
type PDFParser struct{}

func (p *PDFParser) Parse(ctx context.Context, path string) ([]ParsedElement, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var rawSections []rawSection

	for i := 1; i <= totalPages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		rawSections = append(rawSections, splitPageIntoSections(text, i)...)
	}

	rawSections = fixRunningHeaders(rawSections, totalPages)

	elements := make([]ParsedElement, 0, len(rawSections))
	for _, s := range rawSections {
		if s.Heading != "" {
			elements = append(elements, headingElement(s.Heading, s.Level, s.PageNumber))
		}
		if s.Content == "" {
			continue
		}
		if s.IsTable {
			elements = append(elements, tableElement(buildTable(s)))
		} else {
			elements = append(elements, textElement(s.Content, s.PageNumber))
		}
	}

	return elements, nil
}

// rawSection is the adapter's internal representation before it is split
// into the public ParsedElement variants.
type rawSection struct {
	Heading    string
	Content    string
	Level      int
	PageNumber int
	IsTable    bool
}

// buildTable turns a rawSection classified as tabular into a structured
// Table by splitting its lines into cells. The first row becomes the
// header only when looksLikeHeaderRow finds it mostly non-numeric over
// mostly numeric rows below; otherwise every line stays a data row and
// the table has no header rows.
func buildTable(s rawSection) Table {
	lines := strings.Split(s.Content, "\n")
	var rows [][]string
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitTableRow(line))
	}

	t := Table{Rows: rows, Caption: s.Heading, PageNumber: s.PageNumber}
	if len(rows) > 0 && looksLikeHeaderRow(rows[0], rows) {
		t.HeaderRows = rows[:1]
		t.Rows = rows[1:]
	}
	return t
}

// splitTableRow splits a line of rendered table text into cells. Pipe-
// delimited and tab-delimited rows are split directly; otherwise the line
// is split on runs of two or more spaces, the common rendering for
// fixed-width table columns extracted from a PDF content stream.
func splitTableRow(line string) []string {
	var raw []string
	switch {
	case strings.Contains(line, "\t"):
		raw = strings.Split(line, "\t")
	case strings.Count(line, "|") > 1:
		raw = strings.Split(line, "|")
	default:
		raw = splitOnRuns(line, 2)
	}

	cells := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		cells = append(cells, c)
	}
	if len(cells) == 0 {
		return []string{strings.TrimSpace(line)}
	}
	return cells
}

// splitOnRuns splits s on runs of at least minSpaces consecutive spaces.
func splitOnRuns(s string, minSpaces int) []string {
	var out []string
	var cur strings.Builder
	spaceRun := 0
	for _, r := range s {
		if r == ' ' {
			spaceRun++
			if spaceRun >= minSpaces {
				if cur.Len() > 0 {
					out = append(out, cur.String())
					cur.Reset()
				}
				continue
			}
		} else {
			spaceRun = 0
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// looksLikeHeaderRow reports whether the first row reads like a column
// header: it has materially fewer numeric cells than the rows after it.
func looksLikeHeaderRow(first []string, rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	if numericFraction(first) > 0.3 {
		return false
	}
	var rest, numRest int
	for _, r := range rows[1:] {
		rest += len(r)
		for _, c := range r {
			if isNumericCell(c) {
				numRest++
			}
		}
	}
	if rest == 0 {
		return false
	}
	return float64(numRest)/float64(rest) > 0.3
}

func numericFraction(cells []string) float64 {
	if len(cells) == 0 {
		return 0
	}
	n := 0
	for _, c := range cells {
		if isNumericCell(c) {
			n++
		}
	}
	return float64(n) / float64(len(cells))
}

func isNumericCell(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "%$€£")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// extractPageTextOrdered extracts text from a PDF page sorted by visual
// position (top-to-bottom). The default GetPlainText reads text in PDF
// object order, which can differ from visual layout — headings may appear
// after the body text they label.
//
// This groups Content() elements into visual lines by Y proximity
// (preserving content-stream order within each line, which GetPlainText
// relies on for correct character sequencing), then sorts lines by Y so
// the result follows top-to-bottom reading order.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// splitPageIntoSections breaks page text into logical sections: a heading
// line followed by the body text (or table rows) until the next heading.
func splitPageIntoSections(text string, pageNum int) []rawSection {
	lines := strings.Split(text, "\n")
	var sections []rawSection
	var currentContent strings.Builder
	var currentHeading string
	currentLevel := 0

	flush := func() {
		if currentContent.Len() == 0 && currentHeading == "" {
			return
		}
		content := strings.TrimSpace(currentContent.String())
		sections = append(sections, rawSection{
			Heading:    currentHeading,
			Content:    content,
			Level:      currentLevel,
			PageNumber: pageNum,
			IsTable:    looksLikeTable(currentHeading, content),
		})
		currentContent.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			currentHeading = trimmed
			currentLevel = detectHeadingLevel(trimmed)
		} else {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			currentContent.WriteString(trimmed)
		}
	}
	flush()

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, rawSection{Content: text, PageNumber: pageNum})
	}

	return sections
}

func isLikelyHeading(line string) bool {
	if len(line) < 100 && line == strings.ToUpper(line) && len(line) > 2 && strings.ContainsAny(line, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return true
	}
	if len(line) < 120 {
		if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
			return true
		}
		lower := strings.ToLower(line)
		for _, prefix := range []string{"section ", "article ", "chapter ", "part ", "appendix ", "annex ", "schedule ", "note "} {
			if strings.HasPrefix(lower, prefix) {
				return true
			}
		}
	}
	return false
}

func detectHeadingLevel(heading string) int {
	parts := strings.SplitN(heading, " ", 2)
	if len(parts) > 0 {
		if dots := strings.Count(parts[0], "."); dots > 0 {
			return dots
		}
	}
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}

// looksLikeTable reports whether a section's heading or content indicates
// tabular data: an explicit "Table"/"Exhibit" caption, or structural
// evidence (tabs/pipes/multi-space columns) in the body.
func looksLikeTable(heading, content string) bool {
	headingLower := strings.ToLower(heading)
	if strings.Contains(headingLower, "table") || strings.Contains(headingLower, "exhibit") || strings.Contains(headingLower, "schedule") {
		return true
	}
	if strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3 {
		return true
	}
	lines := strings.Split(content, "\n")
	multiSpaceLines := 0
	for _, l := range lines {
		if len(splitOnRuns(l, 2)) >= 3 {
			multiSpaceLines++
		}
	}
	return len(lines) > 1 && multiSpaceLines >= len(lines)/2
}

// fixRunningHeaders detects headings that repeat on most pages (document
// titles/footers) and replaces them with the last real heading seen, so a
// section that continues across a page boundary keeps its real context.
func fixRunningHeaders(sections []rawSection, totalPages int) []rawSection {
	if len(sections) == 0 || totalPages == 0 {
		return sections
	}

	headingPages := make(map[string]map[int]bool)
	for _, s := range sections {
		h := normalizeHeading(s.Heading)
		if h == "" {
			continue
		}
		if headingPages[h] == nil {
			headingPages[h] = make(map[int]bool)
		}
		headingPages[h][s.PageNumber] = true
	}

	threshold := totalPages / 4
	if threshold < 3 {
		threshold = 3
	}
	runningHeaders := make(map[string]bool)
	for h, pages := range headingPages {
		if len(pages) >= threshold {
			runningHeaders[h] = true
		}
	}
	if len(runningHeaders) == 0 {
		return sections
	}

	var lastHeading string
	var lastLevel int
	for i := range sections {
		h := normalizeHeading(sections[i].Heading)
		if runningHeaders[h] {
			if lastHeading != "" {
				sections[i].Heading = lastHeading
				sections[i].Level = lastLevel
			}
		} else if sections[i].Heading != "" {
			lastHeading = sections[i].Heading
			lastLevel = sections[i].Level
		}
	}
	return sections
}

func normalizeHeading(h string) string {
	h = strings.TrimSpace(h)
	for len(h) > 0 {
		r := rune(h[len(h)-1])
		if r > 127 || r == '�' {
			h = h[:len(h)-1]
			h = strings.TrimSpace(h)
		} else {
			break
		}
	}
	return h
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
