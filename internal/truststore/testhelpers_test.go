package truststore

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/sensiblebit/catrust"
)

// newRootDER generates a self-signed ECDSA root CA and returns its DER.
func newRootDER(t *testing.T, cn string, serial int64) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"TestOrg"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	return der
}

// newLenientRootDER returns a root whose serial number was turned negative
// after signing. Real trust lists carry such roots: the lenient parser
// accepts them, the strict encoders do not.
func newLenientRootDER(t *testing.T, cn string) []byte {
	t.Helper()
	der := newRootDER(t, cn, 0x57)
	// The serial is the second TBSCertificate element, so its encoding
	// "02 01 57" appears before any other run of those bytes can.
	i := bytes.Index(der, []byte{0x02, 0x01, 0x57})
	if i < 0 {
		t.Fatal("serial number encoding not found")
	}
	der[i+2] = 0xd7
	if _, err := x509.ParseCertificate(der); err == nil {
		t.Skip("strict parser unexpectedly accepts a negative serial")
	}
	if err := catrust.CheckCertificateDER(der); err != nil {
		t.Skipf("lenient parser rejects the fixture: %v", err)
	}
	return der
}

// collector implements RecordHandler and keeps everything it receives.
type collector struct {
	records []*Record
	diags   []Diagnostic
	fail    error // returned by HandleRecord when set
}

func (c *collector) HandleRecord(rec *Record) error {
	if c.fail != nil {
		return c.fail
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *collector) HandleDiagnostic(d Diagnostic) {
	c.diags = append(c.diags, d)
}

// diagCodes extracts the codes of collected diagnostics.
func diagCodes(diags []Diagnostic) []Code {
	out := make([]Code, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

// octalLines encodes bytes as certdata MULTILINE_OCTAL body lines.
func octalLines(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		fmt.Fprintf(&b, "\\%03o", v)
		if (i+1)%16 == 0 {
			b.WriteByte('\n')
		}
	}
	if len(data)%16 != 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

// certdataCertObject renders a CKO_CERTIFICATE object for the given DER.
func certdataCertObject(t *testing.T, label string, der []byte) string {
	t.Helper()
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	serial, err := asn1.Marshal(cert.SerialNumber)
	if err != nil {
		t.Fatalf("marshal serial: %v", err)
	}
	var b strings.Builder
	b.WriteString("CKA_CLASS CK_OBJECT_CLASS CKO_CERTIFICATE\n")
	b.WriteString("CKA_TOKEN CK_BBOOL CK_TRUE\n")
	fmt.Fprintf(&b, "CKA_LABEL UTF8 %q\n", label)
	b.WriteString("CKA_CERTIFICATE_TYPE CK_CERTIFICATE_TYPE CKC_X_509\n")
	b.WriteString("CKA_ISSUER MULTILINE_OCTAL\n" + octalLines(cert.RawIssuer) + "END\n")
	b.WriteString("CKA_SERIAL_NUMBER MULTILINE_OCTAL\n" + octalLines(serial) + "END\n")
	b.WriteString("CKA_VALUE MULTILINE_OCTAL\n" + octalLines(der) + "END\n")
	return b.String()
}

// certdataTrustObject renders a CKO_NSS_TRUST object joined to the given DER
// by issuer and serial. trustLines maps attribute names to CKT_* constants.
func certdataTrustObject(t *testing.T, label string, der []byte, trustLines map[string]string) string {
	t.Helper()
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	serial, err := asn1.Marshal(cert.SerialNumber)
	if err != nil {
		t.Fatalf("marshal serial: %v", err)
	}
	var b strings.Builder
	b.WriteString("CKA_CLASS CK_OBJECT_CLASS CKO_NSS_TRUST\n")
	fmt.Fprintf(&b, "CKA_LABEL UTF8 %q\n", label)
	b.WriteString("CKA_ISSUER MULTILINE_OCTAL\n" + octalLines(cert.RawIssuer) + "END\n")
	b.WriteString("CKA_SERIAL_NUMBER MULTILINE_OCTAL\n" + octalLines(serial) + "END\n")
	// Sort for reproducible fixtures.
	names := make([]string, 0, len(trustLines))
	for name := range trustLines {
		names = append(names, name)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	for _, name := range names {
		fmt.Fprintf(&b, "%s CK_TRUST %s\n", name, trustLines[name])
	}
	b.WriteString("CKA_TRUST_STEP_UP_APPROVED CK_BBOOL CK_FALSE\n")
	return b.String()
}

// frozenTable builds a frozen table from records under the given policy.
func frozenTable(t *testing.T, policy ConflictPolicy, records ...*Record) *Table {
	t.Helper()
	table := NewTable(policy)
	for _, rec := range records {
		if err := table.HandleRecord(rec); err != nil {
			t.Fatalf("HandleRecord: %v", err)
		}
	}
	table.Freeze()
	return table
}

// record builds a Record with the given trust dispositions.
func record(der []byte, label, source string, trust catrust.TrustMap) *Record {
	return &Record{
		DER:   der,
		Label: label,
		Trust: trust,
		Prov:  Provenance{Source: source, Line: 1},
	}
}
