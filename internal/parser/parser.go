// Package parser implements C1, the Document Parser Adapter: it wraps an
// external PDF-to-structured-document parser (ledongthuc/pdf, treated as
// the black-box collaborator named in the core's scope) and yields an
// ordered, finite stream of typed elements with page-number provenance.
package parser

import "context"

// ElementType tags which variant a ParsedElement carries. Exactly one of
// Text, Table, or Heading is non-nil, matching the element's Type.
type ElementType string

const (
	ElementText    ElementType = "text"
	ElementTable   ElementType = "table"
	ElementHeading ElementType = "heading"
)

// TextBlock is a contiguous span of narrative text.
type TextBlock struct {
	Text       string
	PageNumber int
}

// Table is a structured table with provenance. ContinuationPageNumbers is
// set when a single logical table spans more than one PDF page.
type Table struct {
	Rows                    [][]string
	HeaderRows              [][]string
	Caption                 string
	PageNumber              int
	ContinuationPageNumbers []int
}

// Heading is a section heading at a given nesting depth.
type Heading struct {
	Text       string
	Level      int
	PageNumber int
}

// ParsedElement is a tagged variant over the three element kinds the
// parser adapter emits, re-expressing the source's dynamically-typed
// element payloads as a plain Go struct with explicit fields.
type ParsedElement struct {
	Type    ElementType
	Text    *TextBlock
	Table   *Table
	Heading *Heading
}

func textElement(text string, page int) ParsedElement {
	return ParsedElement{Type: ElementText, Text: &TextBlock{Text: text, PageNumber: page}}
}

func tableElement(t Table) ParsedElement {
	return ParsedElement{Type: ElementTable, Table: &t}
}

func headingElement(text string, level, page int) ParsedElement {
	return ParsedElement{Type: ElementHeading, Heading: &Heading{Text: text, Level: level, PageNumber: page}}
}

// Parser converts a document at path into an ordered stream of
// ParsedElement. The stream is single-pass and finite; it is restartable
// only by calling Parse again. Parse fails with a wrapped parse error on
// unreadable input; otherwise every element carries a valid page number.
type Parser interface {
	Parse(ctx context.Context, path string) ([]ParsedElement, error)
}
