// Package catrust provides the certificate and trust-metadata primitives used
// by the trust-store compiler: content-addressed fingerprints, trust purposes
// and dispositions, the OpenSSL trusted-certificate auxiliary encoding, and
// PEM helpers.
package catrust

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	ctx509 "github.com/google/certificate-transparency-go/x509"
)

// Fingerprint is the SHA-256 digest of a certificate's DER encoding. It is
// the canonical identity of a certificate: two byte-identical certificates
// always share a fingerprint, regardless of label or provenance.
type Fingerprint [sha256.Size]byte

// FingerprintDER computes the fingerprint of DER-encoded certificate bytes.
func FingerprintDER(der []byte) Fingerprint {
	return sha256.Sum256(der)
}

// Hex returns the fingerprint as lowercase hex.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// ColonHex returns the fingerprint in uppercase colon-separated hex
// (AA:BB:CC:...), matching the format used by OpenSSL and browser
// certificate viewers.
func (f Fingerprint) ColonHex() string {
	return strings.ToUpper(ColonHex(f[:]))
}

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return f.Hex()
}

// ParseFingerprint parses a fingerprint from lowercase or uppercase hex,
// with or without colon separators.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(strings.ToLower(strings.ReplaceAll(s, ":", "")))
	if err != nil {
		return f, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(b) != sha256.Size {
		return f, fmt.Errorf("fingerprint is %d bytes, want %d", len(b), sha256.Size)
	}
	copy(f[:], b)
	return f, nil
}

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	h := hex.EncodeToString(b)
	parts := make([]string, 0, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		end := min(i+2, len(h))
		parts = append(parts, h[i:end])
	}
	return strings.Join(parts, ":")
}

// CheckCertificateDER reports whether der decodes as an X.509 certificate.
// The standard library parser is tried first; real-world trust-list roots
// occasionally violate its strictness (negative serials, nonstandard string
// types), so the lenient certificate-transparency parser is the fallback
// before declaring the bytes invalid.
func CheckCertificateDER(der []byte) error {
	if _, err := x509.ParseCertificate(der); err == nil {
		return nil
	}
	_, err := ctx509.ParseCertificate(der)
	if err != nil && ctx509.IsFatal(err) {
		return fmt.Errorf("parsing certificate: %w", err)
	}
	return nil
}

// CertificateSubject returns a human-readable subject string for DER
// certificate bytes, for use as a diagnostic label when a record carries
// none. Returns "" when no subject can be recovered.
func CertificateSubject(der []byte) string {
	if cert, err := x509.ParseCertificate(der); err == nil {
		if cn := cert.Subject.CommonName; cn != "" {
			return cn
		}
		return cert.Subject.String()
	}
	cert, err := ctx509.ParseCertificate(der)
	if err != nil && ctx509.IsFatal(err) {
		return ""
	}
	if cert == nil {
		return ""
	}
	if cn := cert.Subject.CommonName; cn != "" {
		return cn
	}
	return cert.Subject.String()
}

// CertToPEM encodes DER certificate bytes as a CERTIFICATE PEM block.
func CertToPEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	}))
}

// IsPEM returns true if the data appears to contain PEM-encoded content.
func IsPEM(data []byte) bool {
	return strings.Contains(string(data), "-----BEGIN")
}
