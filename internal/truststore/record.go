// Package truststore implements the trust-store compiler pipeline: pluggable
// certificate-list parsers, the canonical fingerprint-keyed trust table, and
// pluggable output emitters, sequenced by an orchestrator.
package truststore

import (
	"fmt"

	"github.com/sensiblebit/catrust"
)

// Provenance records where a certificate record came from, for diagnostics.
type Provenance struct {
	Source string // input source name, usually a file path
	Line   int    // 1-based line number within the source, 0 if unknown
}

func (p Provenance) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d", p.Source, p.Line)
	}
	return p.Source
}

// Record is one certificate plus its declared trust metadata, as parsed from
// an input source. Records are immutable once produced by a parser.
type Record struct {
	// DER holds the certificate's DER encoding.
	DER []byte
	// Label is free text for diagnostics only, never trust-significant.
	Label string
	// Trust holds the per-purpose trust declarations made by the source.
	Trust catrust.TrustMap
	// Prov identifies the source and position the record came from.
	Prov Provenance
}

// Fingerprint computes the record's canonical identity.
func (r *Record) Fingerprint() catrust.Fingerprint {
	return catrust.FingerprintDER(r.DER)
}

// RecordHandler receives records and diagnostics from a parser. A non-nil
// error from HandleRecord aborts the source; parsers report recoverable
// per-record problems through HandleDiagnostic and continue.
type RecordHandler interface {
	HandleRecord(rec *Record) error
	HandleDiagnostic(d Diagnostic)
}
