package truststore

import (
	"fmt"

	"github.com/sensiblebit/catrust"
)

// Code classifies a diagnostic.
type Code string

const (
	// CodeInvalidEncoding marks a record whose certificate bytes do not
	// decode as X.509 DER. Recoverable: the record is skipped.
	CodeInvalidEncoding Code = "invalid-encoding"
	// CodeMalformedRecord marks a structural syntax error in a trust block.
	// Recoverable: the record is skipped.
	CodeMalformedRecord Code = "malformed-record"
	// CodeIntegrityFault marks two records with equal fingerprints but
	// differing bytes. Fatal: the run aborts.
	CodeIntegrityFault Code = "integrity-fault"
	// CodeTrustConflict marks contradictory explicit trusted/distrusted
	// declarations for one purpose across sources. Severity depends on the
	// configured conflict policy.
	CodeTrustConflict Code = "trust-conflict"
	// CodeUnsupportedEntry marks a canonical entry an emitter cannot
	// faithfully represent. Fatal for that emitter only.
	CodeUnsupportedEntry Code = "unsupported-entry"
	// CodeSourceError marks a source that could not be read to completion,
	// such as a scanner failure on an oversized line. Fatal: the unread
	// remainder may carry distrust declarations.
	CodeSourceError Code = "source-error"
)

// Severity is the impact of a diagnostic on the run.
type Severity int

const (
	// SeverityWarning diagnostics are reported but do not fail the run.
	SeverityWarning Severity = iota
	// SeverityFatal diagnostics fail the run; no artifacts are written.
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "warning"
}

// Diagnostic is one reportable problem, tagged with provenance.
type Diagnostic struct {
	Code        Code
	Severity    Severity
	Prov        Provenance
	Fingerprint catrust.Fingerprint // zero when not tied to a certificate
	Message     string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Prov, d.Code, d.Message)
}

// Status is the aggregate outcome of a compiler run.
type Status int

const (
	// StatusSuccess means no diagnostics were raised.
	StatusSuccess Status = iota
	// StatusSuccessWithWarnings means only non-fatal diagnostics were raised.
	StatusSuccessWithWarnings
	// StatusFailed means at least one fatal diagnostic was raised; no
	// artifacts are produced.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuccessWithWarnings:
		return "success-with-warnings"
	default:
		return "failed"
	}
}

// statusOf derives the run status from collected diagnostics.
func statusOf(diags []Diagnostic) Status {
	status := StatusSuccess
	for _, d := range diags {
		if d.Severity == SeverityFatal {
			return StatusFailed
		}
		status = StatusSuccessWithWarnings
	}
	return status
}
