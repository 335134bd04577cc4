package truststore

import (
	"fmt"
	"sort"
)

// Parser turns one input source into a sequence of records, delivered to a
// RecordHandler in input order. Parsers report recoverable per-record
// problems as diagnostics and continue; they return an error only for
// source-level failures (unreadable input) or when the handler aborts.
type Parser interface {
	// Format returns the parser's format identifier.
	Format() string
	// Parse reads the whole source. The source name tags provenance.
	Parse(data []byte, source string, h RecordHandler) error
}

var parsers = map[string]Parser{}

// RegisterParser adds a parser to the format registry. Panics on duplicate
// format identifiers; registration happens at init time.
func RegisterParser(p Parser) {
	if _, dup := parsers[p.Format()]; dup {
		panic(fmt.Sprintf("truststore: parser %q registered twice", p.Format()))
	}
	parsers[p.Format()] = p
}

// NewParser returns the parser for a format identifier.
func NewParser(format string) (Parser, error) {
	p, ok := parsers[format]
	if !ok {
		return nil, fmt.Errorf("unknown input format %q (have %v)", format, ParserFormats())
	}
	return p, nil
}

// ParserFormats returns the registered input format identifiers, sorted.
func ParserFormats() []string {
	out := make([]string, 0, len(parsers))
	for f := range parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
