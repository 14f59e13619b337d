// Package classifier implements C9: a pure regex/keyword decision tree
// that routes a query to VECTOR_ONLY, SQL_ONLY, or HYBRID without ever
// invoking a model. The tree is evaluated once per query and completes
// in well under a millisecond, satisfying the <50ms budget by
// construction rather than by measurement.
package classifier

import "regexp"

// Route names the retrieval strategy a query was routed to.
type Route string

const (
	VectorOnly Route = "VECTOR_ONLY"
	SQLOnly    Route = "SQL_ONLY"
	Hybrid     Route = "HYBRID"
)

var (
	tableKeywords    = wordBoundary(`table`, `row`, `column`, `cell`)
	semanticKeywords = wordBoundary(`explain`, `summarize`, `why`, `describe`, `compare`, `analyze`, `how`)
	precisionKeywords = wordBoundary(`exact`, `precise`, `specific`)

	metricTerms = wordBoundary(
		// financial
		`revenue`, `ebitda`, `margin`, `cost`, `expense`, `capex`, `opex`,
		`profit`, `income`, `earnings`, `cash flow`,
		// operational
		`production`, `volume`, `headcount`, `fte`, `output`, `utilization`,
		// cost
		`variable cost`, `fixed cost`, `per ton`, `raw materials`,
	)

	temporalTerms = regexp.MustCompile(`(?i)\b(q[1-4]|january|february|march|april|may|june|july|august|` +
		`september|october|november|december|\d{4}|ytd|h1|h2|fy\s*\d{2,4}|last quarter|this year|` +
		`last year|current|latest|recent|historical)\b`)

	numericReference = regexp.MustCompile(`\d`)
)

func wordBoundary(terms ...string) *regexp.Regexp {
	pattern := `(?i)\b(`
	for i, t := range terms {
		if i > 0 {
			pattern += "|"
		}
		pattern += regexp.QuoteMeta(t)
	}
	pattern += `)\b`
	return regexp.MustCompile(pattern)
}

// Classify applies the routing decision tree, first match wins: table
// keyword without semantic keyword -> SQL_ONLY; table and semantic
// keywords -> HYBRID; semantic keyword with a metric term, temporal term
// or digit -> HYBRID; semantic keyword alone -> VECTOR_ONLY; metric and
// temporal terms -> SQL_ONLY; precision keyword with metric and temporal
// terms -> SQL_ONLY; anything else -> HYBRID.
func Classify(query string) Route {
	hasTable := tableKeywords.MatchString(query)
	hasSemantic := semanticKeywords.MatchString(query)
	hasPrecision := precisionKeywords.MatchString(query)
	hasMetric := metricTerms.MatchString(query)
	hasTemporal := temporalTerms.MatchString(query)
	hasNumeric := numericReference.MatchString(query)

	switch {
	case hasTable && !hasSemantic:
		return SQLOnly
	case hasTable && hasSemantic:
		return Hybrid
	case hasSemantic && (hasMetric || hasTemporal || hasNumeric):
		return Hybrid
	case hasSemantic:
		return VectorOnly
	case hasMetric && hasTemporal:
		return SQLOnly
	case hasPrecision && hasMetric && hasTemporal:
		return SQLOnly
	default:
		return Hybrid
	}
}
