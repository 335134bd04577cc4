package truststore

import (
	"fmt"
	"sort"

	"github.com/sensiblebit/catrust"
)

// Emitter serializes a frozen canonical table into one trust-store format.
// Emitters are pure: same table, same bytes. They preserve the table's
// first-seen entry order and never re-sort by fingerprint value, so output
// is reproducible across runs on identical input.
type Emitter interface {
	// Format returns the emitter's format identifier.
	Format() string
	// Emit serializes the frozen table.
	Emit(t *Table) ([]byte, error)
}

// UnsupportedEntryError reports a canonical entry an emitter cannot
// faithfully represent. It fails that emitter only; other emitters proceed.
type UnsupportedEntryError struct {
	Format      string
	Fingerprint catrust.Fingerprint
	Reason      string
}

func (e *UnsupportedEntryError) Error() string {
	return fmt.Sprintf("%s: unsupported entry %s: %s", e.Format, e.Fingerprint.Hex(), e.Reason)
}

var emitters = map[string]Emitter{}

// RegisterEmitter adds an emitter to the format registry. Panics on
// duplicate format identifiers; registration happens at init time.
func RegisterEmitter(e Emitter) {
	if _, dup := emitters[e.Format()]; dup {
		panic(fmt.Sprintf("truststore: emitter %q registered twice", e.Format()))
	}
	emitters[e.Format()] = e
}

// NewEmitter returns the emitter for a format identifier.
func NewEmitter(format string) (Emitter, error) {
	e, ok := emitters[format]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (have %v)", format, EmitterFormats())
	}
	return e, nil
}

// EmitterFormats returns the registered output format identifiers, sorted.
func EmitterFormats() []string {
	out := make([]string, 0, len(emitters))
	for f := range emitters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// entryLabel returns the label for an entry, substituting a well-defined
// placeholder when the source declared none: the certificate subject if one
// can be recovered, else the hex fingerprint. Labels are diagnostic, never
// trust-significant, so a placeholder is always acceptable.
func entryLabel(e *Entry) string {
	if e.Label != "" {
		return e.Label
	}
	if subject := catrust.CertificateSubject(e.DER); subject != "" {
		return subject
	}
	return e.Fingerprint.Hex()
}
