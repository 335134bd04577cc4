package truststore

import (
	"encoding/json"
	"fmt"
)

func init() {
	RegisterEmitter(&JSONIndexEmitter{})
}

// indexEntry is one canonical entry in the machine-readable index.
type indexEntry struct {
	FingerprintSHA256 string            `json:"fingerprintSHA256"`
	Label             string            `json:"label"`
	Source            string            `json:"source"`
	Anchor            bool              `json:"anchor"`
	Trust             map[string]string `json:"trust"`
}

// indexDoc is the top-level index document.
type indexDoc struct {
	Entries []indexEntry `json:"entries"`
}

// JSONIndexEmitter produces the fingerprint→trust-flags index consumed by
// downstream tooling. Entries appear in first-seen order; purpose keys are
// emitted sorted, so the document is byte-stable.
type JSONIndexEmitter struct{}

// Format implements Emitter.
func (*JSONIndexEmitter) Format() string { return "json-index" }

// Emit implements Emitter.
func (e *JSONIndexEmitter) Emit(t *Table) ([]byte, error) {
	doc := indexDoc{Entries: make([]indexEntry, 0, t.Len())}
	for _, entry := range t.Entries() {
		trust := make(map[string]string, len(entry.Trust))
		for _, p := range entry.Trust.Purposes() {
			trust[string(p)] = entry.Trust[p].String()
		}
		doc.Entries = append(doc.Entries, indexEntry{
			FingerprintSHA256: entry.Fingerprint.Hex(),
			Label:             entryLabel(entry),
			Source:            entry.Prov.Source,
			Anchor:            entry.Trust.IsAnchor(),
			Trust:             trust,
		})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling index: %w", err)
	}
	return append(out, '\n'), nil
}
