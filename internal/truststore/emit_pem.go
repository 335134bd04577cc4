package truststore

import (
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/sensiblebit/catrust"
	"github.com/valyala/bytebufferpool"
)

func init() {
	RegisterEmitter(&PEMBundleEmitter{})
	RegisterEmitter(&PEMAnchorsEmitter{})
}

// PEMBundleEmitter produces the full trust bundle: every canonical entry,
// in first-seen order, as an OpenSSL TRUSTED CERTIFICATE block carrying the
// trust/reject purpose OIDs, preceded by comment headers with the label,
// fingerprint, and the complete per-purpose trust declarations. The comment
// headers carry purposes the aux cannot (those with no OID form), so the
// bundle re-parses to the exact canonical trust map.
type PEMBundleEmitter struct{}

// Format implements Emitter.
func (*PEMBundleEmitter) Format() string { return "pem-bundle" }

// Emit implements Emitter.
func (e *PEMBundleEmitter) Emit(t *Table) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for i, entry := range t.Entries() {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(buf, "# Label: %s\n", entryLabel(entry))
		fmt.Fprintf(buf, "# Fingerprint (SHA-256): %s\n", entry.Fingerprint.ColonHex())
		writePurposeLine(buf, "Trust", entry.Trust.PurposesWith(catrust.Trusted))
		writePurposeLine(buf, "Distrust", entry.Trust.PurposesWith(catrust.Distrusted))
		writePurposeLine(buf, "MustVerify", entry.Trust.PurposesWith(catrust.MustVerify))

		trustOIDs, rejectOIDs := catrust.TrustMapToAux(entry.Trust)
		aux, err := catrust.MarshalCertAux(trustOIDs, rejectOIDs)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.Fingerprint.Hex(), err)
		}
		content := make([]byte, 0, len(entry.DER)+len(aux))
		content = append(content, entry.DER...)
		content = append(content, aux...)
		buf.Write(pem.EncodeToMemory(&pem.Block{
			Type:  "TRUSTED CERTIFICATE",
			Bytes: content,
		}))
	}

	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

// writePurposeLine writes one "# Key: p1 p2" header, omitted when empty.
func writePurposeLine(buf *bytebufferpool.ByteBuffer, key string, purposes []catrust.Purpose) {
	if len(purposes) == 0 {
		return
	}
	names := make([]string, len(purposes))
	for i, p := range purposes {
		names[i] = string(p)
	}
	fmt.Fprintf(buf, "# %s: %s\n", key, strings.Join(names, " "))
}

// PEMAnchorsEmitter produces the bare anchors-only bundle: plain CERTIFICATE
// blocks for every entry trusted for at least one purpose and distrusted for
// none. Distrusted and unspecified entries are omitted entirely, making the
// output safe to hand to libraries that treat presence as trust.
type PEMAnchorsEmitter struct{}

// Format implements Emitter.
func (*PEMAnchorsEmitter) Format() string { return "pem-anchors" }

// Emit implements Emitter.
func (e *PEMAnchorsEmitter) Emit(t *Table) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, entry := range anchors(t) {
		buf.WriteString(catrust.CertToPEM(entry.DER))
	}

	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}
