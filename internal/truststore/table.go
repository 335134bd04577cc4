package truststore

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sensiblebit/catrust"
)

// ConflictPolicy selects how contradictory explicit trusted/distrusted
// declarations for one purpose across sources are handled.
type ConflictPolicy string

const (
	// PolicyDistrustWins resolves conflicts by keeping the distrust and
	// reporting a warning. This is the safe default.
	PolicyDistrustWins ConflictPolicy = "distrust-wins"
	// PolicyFail treats any conflict as fatal.
	PolicyFail ConflictPolicy = "fail"
)

// ParseConflictPolicy validates a policy name.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case PolicyDistrustWins:
		return PolicyDistrustWins, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q (want %q or %q)", s, PolicyDistrustWins, PolicyFail)
	}
}

// Entry is one canonical certificate in the merged trust table: the
// first-seen DER bytes plus the merged per-purpose trust dispositions.
type Entry struct {
	Fingerprint catrust.Fingerprint
	DER         []byte
	Label       string
	Trust       catrust.TrustMap
	Prov        Provenance // first-seen provenance
}

// Table is the canonical trust table. It consumes records from parsers
// (implementing RecordHandler), deduplicates by fingerprint, merges trust
// declarations, and — once frozen — serves entries to emitters in first-seen
// order. The table has a single writer; Freeze is the barrier after which it
// is read-only.
type Table struct {
	policy  ConflictPolicy
	entries map[catrust.Fingerprint]*Entry
	order   []catrust.Fingerprint
	diags   []Diagnostic
	frozen  bool
}

// NewTable creates an empty table with the given conflict policy.
func NewTable(policy ConflictPolicy) *Table {
	return &Table{
		policy:  policy,
		entries: make(map[catrust.Fingerprint]*Entry),
	}
}

// HandleRecord folds one record into the table. A new fingerprint inserts an
// entry seeded with the record's trust map. A known fingerprint must carry
// byte-identical DER — a mismatch is a hash-collision/integrity fault,
// reported fatally — and has its trust declarations merged under the
// precedence rule, with explicit contradictions reported per policy.
func (t *Table) HandleRecord(rec *Record) error {
	if t.frozen {
		return fmt.Errorf("table is frozen; record from %s rejected", rec.Prov)
	}

	fp := rec.Fingerprint()
	existing, ok := t.entries[fp]
	if !ok {
		t.entries[fp] = &Entry{
			Fingerprint: fp,
			DER:         bytes.Clone(rec.DER),
			Label:       rec.Label,
			Trust:       rec.Trust.Clone(),
			Prov:        rec.Prov,
		}
		t.order = append(t.order, fp)
		return nil
	}

	if !bytes.Equal(existing.DER, rec.DER) {
		d := Diagnostic{
			Code:        CodeIntegrityFault,
			Severity:    SeverityFatal,
			Prov:        rec.Prov,
			Fingerprint: fp,
			Message: fmt.Sprintf("certificate bytes differ from earlier record at %s despite equal fingerprint %s",
				existing.Prov, fp.Hex()),
		}
		t.diags = append(t.diags, d)
		return fmt.Errorf("integrity fault: %s", d.Message)
	}

	if conflicts := existing.Trust.Conflicts(rec.Trust); len(conflicts) > 0 {
		severity := SeverityWarning
		resolution := "keeping distrust"
		if t.policy == PolicyFail {
			severity = SeverityFatal
			resolution = "failing per policy"
		}
		names := make([]string, len(conflicts))
		for i, p := range conflicts {
			names[i] = string(p)
		}
		t.diags = append(t.diags, Diagnostic{
			Code:        CodeTrustConflict,
			Severity:    severity,
			Prov:        rec.Prov,
			Fingerprint: fp,
			Message: fmt.Sprintf("trust contradicts earlier declaration at %s for %s; %s",
				existing.Prov, strings.Join(names, ", "), resolution),
		})
		slog.Warn("trust conflict",
			"fingerprint", fp.Hex(),
			"purposes", names,
			"first_seen", existing.Prov.String(),
			"source", rec.Prov.String())
	}

	// Distrust-wins precedence holds under either policy: even a fatal
	// conflict leaves the table internally consistent for reporting.
	existing.Trust.Merge(rec.Trust)

	if existing.Label == "" {
		existing.Label = rec.Label
	}
	return nil
}

// HandleDiagnostic collects a parser diagnostic.
func (t *Table) HandleDiagnostic(d Diagnostic) {
	t.diags = append(t.diags, d)
}

// Freeze ends the merge phase. After Freeze the table never mutates, so
// emitters may read it concurrently.
func (t *Table) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	return t.frozen
}

// Len returns the number of canonical entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns the canonical entries in first-seen order. Panics if the
// table has not been frozen: emitters must never observe a mutable table.
func (t *Table) Entries() []*Entry {
	if !t.frozen {
		panic("truststore: Entries called before Freeze")
	}
	out := make([]*Entry, 0, len(t.order))
	for _, fp := range t.order {
		out = append(out, t.entries[fp])
	}
	return out
}

// Lookup returns the entry for a fingerprint, or nil.
func (t *Table) Lookup(fp catrust.Fingerprint) *Entry {
	return t.entries[fp]
}

// Diagnostics returns all diagnostics collected so far.
func (t *Table) Diagnostics() []Diagnostic {
	return t.diags
}

// anchors returns the entries that are usable trust anchors (trusted for at
// least one purpose, distrusted for none), preserving first-seen order.
func anchors(t *Table) []*Entry {
	var out []*Entry
	for _, e := range t.Entries() {
		if e.Trust.IsAnchor() {
			out = append(out, e)
		}
	}
	return out
}
