package truststore

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func init() {
	RegisterEmitter(&JKSEmitter{})
	RegisterEmitter(&PKCS12Emitter{})
	RegisterEmitter(&PKCS7Emitter{})
}

// jksPassword protects emitted Java trust stores. "changeit" is the JDK
// convention for cacerts files.
const jksPassword = "changeit"

// JKSEmitter produces a Java KeyStore of trusted-certificate entries for the
// anchor set. Creation times are pinned to the epoch and aliases are ordered,
// keeping the store byte-stable across runs.
type JKSEmitter struct{}

// Format implements Emitter.
func (*JKSEmitter) Format() string { return "jks" }

// Emit implements Emitter.
func (e *JKSEmitter) Emit(t *Table) ([]byte, error) {
	ks := keystore.New(keystore.WithOrderedAliases())
	for _, entry := range anchors(t) {
		alias := jksAlias(entry)
		err := ks.SetTrustedCertificateEntry(alias, keystore.TrustedCertificateEntry{
			CreationTime: time.Unix(0, 0).UTC(),
			Certificate: keystore.Certificate{
				Type:    "X.509",
				Content: entry.DER,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("setting JKS entry %q: %w", alias, err)
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(jksPassword)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}
	return buf.Bytes(), nil
}

// jksAlias builds a unique, deterministic alias. Java tooling lowercases
// aliases on lookup, so the label is lowercased up front; a fingerprint
// suffix disambiguates equal labels.
func jksAlias(entry *Entry) string {
	return strings.ToLower(entryLabel(entry)) + " [" + entry.Fingerprint.Hex()[:12] + "]"
}

// PKCS12Emitter produces a passwordless PKCS#12 trust store of the anchor
// set. Passwordless encoding applies no MAC and no encryption, so the output
// carries no random salts and stays byte-stable.
type PKCS12Emitter struct{}

// Format implements Emitter.
func (*PKCS12Emitter) Format() string { return "pkcs12" }

// Emit implements Emitter.
func (e *PKCS12Emitter) Emit(t *Table) ([]byte, error) {
	entries := anchors(t)
	certs := make([]*x509.Certificate, 0, len(entries))
	for _, entry := range entries {
		cert, err := x509.ParseCertificate(entry.DER)
		if err != nil {
			// The canonical table keeps leniently-parsed certificates that
			// the PKCS#12 encoder cannot take.
			return nil, &UnsupportedEntryError{
				Format:      e.Format(),
				Fingerprint: entry.Fingerprint,
				Reason:      fmt.Sprintf("certificate not encodable: %v", err),
			}
		}
		certs = append(certs, cert)
	}
	data, err := gopkcs12.Passwordless.EncodeTrustStore(certs, "")
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#12 trust store: %w", err)
	}
	return data, nil
}

// PKCS7Emitter produces a certs-only PKCS#7 degenerate SignedData of the
// anchor set.
type PKCS7Emitter struct{}

// Format implements Emitter.
func (*PKCS7Emitter) Format() string { return "pkcs7" }

// Emit implements Emitter.
func (e *PKCS7Emitter) Emit(t *Table) ([]byte, error) {
	var der []byte
	for _, entry := range anchors(t) {
		der = append(der, entry.DER...)
	}
	data, err := pkcs7.DegenerateCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#7 bundle: %w", err)
	}
	return data, nil
}
