package truststore

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sensiblebit/catrust"
)

func TestCertdataParser_CertificateWithTrust(t *testing.T) {
	// WHY: The core certdata path: a certificate object and its trust
	// object join by (issuer, serial) into one record carrying both the
	// bytes and the per-purpose dispositions.
	t.Parallel()
	der := newRootDER(t, "Example Root CA", 7)

	src := "# Generated fixture\nBEGINDATA\n" +
		certdataCertObject(t, "Example Root CA", der) + "\n" +
		certdataTrustObject(t, "Example Root CA", der, map[string]string{
			"CKA_TRUST_SERVER_AUTH":      "CKT_NSS_TRUSTED_DELEGATOR",
			"CKA_TRUST_EMAIL_PROTECTION": "CKT_NSS_MUST_VERIFY_TRUST",
			"CKA_TRUST_CODE_SIGNING":     "CKT_NSS_NOT_TRUSTED",
		})

	var c collector
	if err := (&CertdataParser{}).Parse([]byte(src), "certdata.txt", &c); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", c.diags)
	}
	if len(c.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(c.records))
	}

	rec := c.records[0]
	if !bytes.Equal(rec.DER, der) {
		t.Error("record DER differs from input certificate")
	}
	if rec.Label != "Example Root CA" {
		t.Errorf("Label = %q", rec.Label)
	}
	want := catrust.TrustMap{
		catrust.PurposeServerAuth:      catrust.Trusted,
		catrust.PurposeEmailProtection: catrust.MustVerify,
		catrust.PurposeCodeSigning:     catrust.Distrusted,
	}
	if !rec.Trust.Equal(want) {
		t.Errorf("Trust = %v, want %v", rec.Trust, want)
	}
}

func TestCertdataParser_UnknownTrustAttributePassthrough(t *testing.T) {
	// WHY: The purpose set is open. A trust attribute this tool has never
	// heard of must survive verbatim instead of being dropped.
	t.Parallel()
	der := newRootDER(t, "Open Set Root", 8)

	src := "BEGINDATA\n" +
		certdataCertObject(t, "Open Set Root", der) + "\n" +
		certdataTrustObject(t, "Open Set Root", der, map[string]string{
			"CKA_TRUST_TIME_STAMPING": "CKT_NSS_TRUSTED_DELEGATOR",
		})

	var c collector
	if err := (&CertdataParser{}).Parse([]byte(src), "certdata.txt", &c); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(c.records))
	}
	if c.records[0].Trust[catrust.Purpose("time-stamping")] != catrust.Trusted {
		t.Errorf("Trust = %v, want time-stamping trusted", c.records[0].Trust)
	}
}

func TestCertdataParser_MalformedBlockBetweenValid(t *testing.T) {
	// WHY: A single bad object must not poison the source: both neighbors
	// still parse and the malformed object is reported with its line.
	t.Parallel()
	derA := newRootDER(t, "Before Root", 1)
	derB := newRootDER(t, "After Root", 2)

	src := "BEGINDATA\n" +
		certdataCertObject(t, "Before Root", derA) + "\n" +
		"CKA_CLASS CK_OBJECT_CLASS CKO_CERTIFICATE\n" +
		"CKA_LABEL UTF8 \"Broken Root\"\n" +
		"CKA_VALUE MULTILINE_OCTAL\n\\999\nEND\n" + "\n" +
		certdataCertObject(t, "After Root", derB)

	var c collector
	if err := (&CertdataParser{}).Parse([]byte(src), "certdata.txt", &c); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.records) != 2 {
		t.Fatalf("expected 2 records, got %d (diags: %v)", len(c.records), c.diags)
	}
	if c.records[0].Label != "Before Root" || c.records[1].Label != "After Root" {
		t.Errorf("labels = %q, %q", c.records[0].Label, c.records[1].Label)
	}
	codes := diagCodes(c.diags)
	if len(codes) != 1 || codes[0] != CodeMalformedRecord {
		t.Fatalf("diagnostics = %v, want one malformed-record", c.diags)
	}
	if c.diags[0].Prov.Source != "certdata.txt" || c.diags[0].Prov.Line == 0 {
		t.Errorf("diagnostic provenance = %v, want source and line", c.diags[0].Prov)
	}
}

func TestCertdataParser_InvalidCertificateDER(t *testing.T) {
	// WHY: Bytes that decode as octal but not as a certificate are an
	// invalid-encoding problem, distinct from trust-field malformation.
	t.Parallel()
	src := "BEGINDATA\n" +
		"CKA_CLASS CK_OBJECT_CLASS CKO_CERTIFICATE\n" +
		"CKA_LABEL UTF8 \"Not A Cert\"\n" +
		"CKA_VALUE MULTILINE_OCTAL\n\\001\\002\\003\\004\nEND\n"

	var c collector
	if err := (&CertdataParser{}).Parse([]byte(src), "certdata.txt", &c); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.records) != 0 {
		t.Fatalf("expected no records, got %d", len(c.records))
	}
	codes := diagCodes(c.diags)
	if len(codes) != 1 || codes[0] != CodeInvalidEncoding {
		t.Fatalf("diagnostics = %v, want one invalid-encoding", c.diags)
	}
}

func TestCertdataParser_OrphanTrustObject(t *testing.T) {
	// WHY: A distrust record that matches no certificate must surface as a
	// diagnostic; silently dropping it could drop a distrust declaration.
	t.Parallel()
	derPresent := newRootDER(t, "Present Root", 1)
	derAbsent := newRootDER(t, "Absent Root", 2)

	src := "BEGINDATA\n" +
		certdataCertObject(t, "Present Root", derPresent) + "\n" +
		certdataTrustObject(t, "Absent Root", derAbsent, map[string]string{
			"CKA_TRUST_SERVER_AUTH": "CKT_NSS_NOT_TRUSTED",
		})

	var c collector
	if err := (&CertdataParser{}).Parse([]byte(src), "certdata.txt", &c); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(c.records))
	}
	codes := diagCodes(c.diags)
	if len(codes) != 1 || codes[0] != CodeMalformedRecord {
		t.Fatalf("diagnostics = %v, want one malformed-record for the orphan", c.diags)
	}
	if !strings.Contains(c.diags[0].Message, "matches no certificate") {
		t.Errorf("message = %q", c.diags[0].Message)
	}
}

func TestCertdataParser_LegacyNetscapeConstants(t *testing.T) {
	// WHY: Older trust lists use CKT_NETSCAPE_* and CKO_NETSCAPE_TRUST
	// spellings; they carry the same semantics.
	t.Parallel()
	der := newRootDER(t, "Legacy Root", 9)

	trustObj := strings.ReplaceAll(
		certdataTrustObject(t, "Legacy Root", der, map[string]string{
			"CKA_TRUST_SERVER_AUTH": "CKT_NETSCAPE_TRUSTED_DELEGATOR",
		}),
		"CKO_NSS_TRUST", "CKO_NETSCAPE_TRUST")
	src := "BEGINDATA\n" + certdataCertObject(t, "Legacy Root", der) + "\n" + trustObj

	var c collector
	if err := (&CertdataParser{}).Parse([]byte(src), "certdata.txt", &c); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(c.records))
	}
	if c.records[0].Trust[catrust.PurposeServerAuth] != catrust.Trusted {
		t.Errorf("Trust = %v", c.records[0].Trust)
	}
}

func TestCertdataParser_EmptySource(t *testing.T) {
	// WHY: An empty source is not an error; it contributes nothing.
	t.Parallel()
	var c collector
	if err := (&CertdataParser{}).Parse(nil, "empty.txt", &c); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.records) != 0 || len(c.diags) != 0 {
		t.Errorf("records = %d, diags = %d, want none", len(c.records), len(c.diags))
	}
}

func TestDecodeCertdataString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`"Example Root CA"`, "Example Root CA", false},
		{`"Escaped \" quote"`, `Escaped " quote`, false},
		{`"Back\\slash"`, `Back\slash`, false},
		{`unquoted`, "", true},
		{`"dangling\`, "", true},
	}
	for _, tt := range tests {
		got, err := decodeCertdataString(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("decodeCertdataString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("decodeCertdataString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
