package chunker

import "errors"

// errMissingPage is wrapped into ChunkingError-kind failures: the chunker
// fails only on internal inconsistency (a parsed element missing a page
// number), never on parser output shape it doesn't understand.
var errMissingPage = errors.New("chunker: element missing page number")
