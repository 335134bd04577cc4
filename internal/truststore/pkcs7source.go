package truststore

import (
	"encoding/pem"

	"github.com/sensiblebit/catrust"
	"github.com/smallstep/pkcs7"
)

func init() {
	RegisterParser(&PKCS7Parser{})
}

// PKCS7Parser reads a certs-only PKCS#7 bundle (DER, or a single PKCS7 PEM
// block). PKCS#7 carries no trust metadata, so every certificate is ingested
// with all purposes unspecified; sources of this format are typically paired
// with a default trust declaration at the orchestration boundary.
type PKCS7Parser struct{}

// Format implements Parser.
func (*PKCS7Parser) Format() string { return "pkcs7" }

// Parse implements Parser.
func (p *PKCS7Parser) Parse(data []byte, source string, h RecordHandler) error {
	der := data
	if catrust.IsPEM(data) {
		block, _ := pem.Decode(data)
		if block != nil {
			der = block.Bytes
		}
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		h.HandleDiagnostic(Diagnostic{
			Code:     CodeMalformedRecord,
			Severity: SeverityWarning,
			Prov:     Provenance{Source: source},
			Message:  "parsing PKCS#7: " + err.Error(),
		})
		return nil
	}
	for _, cert := range p7.Certificates {
		rec := &Record{
			DER:   cert.Raw,
			Label: cert.Subject.CommonName,
			Trust: make(catrust.TrustMap),
			Prov:  Provenance{Source: source},
		}
		if err := h.HandleRecord(rec); err != nil {
			return err
		}
	}
	return nil
}
