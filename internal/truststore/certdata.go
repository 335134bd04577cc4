package truststore

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sensiblebit/catrust"
)

func init() {
	RegisterParser(&CertdataParser{})
}

// CertdataParser reads the NSS certdata.txt trust-list format: a
// line-oriented sequence of PKCS#11-style objects, each introduced by a
// CKA_CLASS attribute. CKO_CERTIFICATE objects carry the certificate bytes
// and label; CKO_NSS_TRUST objects carry per-purpose trust declarations and
// join to their certificate by (issuer, serial number). '#' comments and
// blank lines separate objects.
type CertdataParser struct{}

// Format implements Parser.
func (*CertdataParser) Format() string { return "certdata" }

// certdataObject is one parsed PKCS#11-style object.
type certdataObject struct {
	line   int // line the object started on
	class  string
	attrs  map[string]certdataAttr
	broken bool // structural error already reported; skip on join
}

// certdataAttr is one CKA_* attribute value.
type certdataAttr struct {
	typ  string // UTF8, MULTILINE_OCTAL, CK_BBOOL, CK_TRUST, ...
	str  string // token or decoded string value
	data []byte // decoded MULTILINE_OCTAL payload
}

// trustAttrPurposes maps the trust attributes NSS defines today. Any other
// CKA_TRUST_* attribute of type CK_TRUST is passed through with a purpose
// name derived from the attribute suffix, keeping the purpose set open.
var trustAttrPurposes = map[string]catrust.Purpose{
	"CKA_TRUST_SERVER_AUTH":      catrust.PurposeServerAuth,
	"CKA_TRUST_EMAIL_PROTECTION": catrust.PurposeEmailProtection,
	"CKA_TRUST_CODE_SIGNING":     catrust.PurposeCodeSigning,
}

// Parse implements Parser.
func (p *CertdataParser) Parse(data []byte, source string, h RecordHandler) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		objects []*certdataObject
		cur     *certdataObject
		line    int
	)
	malformed := func(ln int, format string, args ...any) {
		h.HandleDiagnostic(Diagnostic{
			Code:     CodeMalformedRecord,
			Severity: SeverityWarning,
			Prov:     Provenance{Source: source, Line: ln},
			Message:  fmt.Sprintf(format, args...),
		})
		if cur != nil {
			cur.broken = true
		}
	}

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if text == "BEGINDATA" || strings.HasPrefix(text, "CVS_ID") {
			continue
		}

		name, rest, _ := strings.Cut(text, " ")
		typ, value, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if typ == "" {
			malformed(line, "attribute %q has no type", name)
			continue
		}

		attr := certdataAttr{typ: typ}
		switch typ {
		case "MULTILINE_OCTAL":
			payload, consumed, err := decodeMultilineOctal(sc)
			if err != nil {
				malformed(line, "attribute %s: %v", name, err)
				line += consumed
				continue
			}
			line += consumed
			attr.data = payload
		case "UTF8":
			s, err := decodeCertdataString(strings.TrimSpace(value))
			if err != nil {
				malformed(line, "attribute %s: %v", name, err)
				continue
			}
			attr.str = s
		default:
			attr.str = strings.TrimSpace(value)
		}

		if name == "CKA_CLASS" {
			cur = &certdataObject{
				line:  line,
				class: attr.str,
				attrs: make(map[string]certdataAttr),
			}
			objects = append(objects, cur)
			continue
		}
		if cur == nil {
			malformed(line, "attribute %s appears before any CKA_CLASS", name)
			continue
		}
		cur.attrs[name] = attr
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}

	return p.join(objects, source, h)
}

// join pairs trust objects with certificate objects by (issuer, serial) and
// emits one record per certificate, preserving certificate input order.
func (p *CertdataParser) join(objects []*certdataObject, source string, h RecordHandler) error {
	type certEntry struct {
		obj *certdataObject
		rec *Record
	}
	certsByKey := make(map[string]*certEntry)
	var certs []*certEntry
	var trusts []*certdataObject

	for _, obj := range objects {
		if obj.broken {
			continue
		}
		switch obj.class {
		case "CKO_CERTIFICATE":
			der, ok := obj.attrs["CKA_VALUE"]
			if !ok || der.typ != "MULTILINE_OCTAL" {
				h.HandleDiagnostic(Diagnostic{
					Code:     CodeMalformedRecord,
					Severity: SeverityWarning,
					Prov:     Provenance{Source: source, Line: obj.line},
					Message:  "certificate object has no CKA_VALUE",
				})
				continue
			}
			if err := catrust.CheckCertificateDER(der.data); err != nil {
				h.HandleDiagnostic(Diagnostic{
					Code:     CodeInvalidEncoding,
					Severity: SeverityWarning,
					Prov:     Provenance{Source: source, Line: obj.line},
					Message:  fmt.Sprintf("certificate %q: %v", obj.attrs["CKA_LABEL"].str, err),
				})
				continue
			}
			entry := &certEntry{
				obj: obj,
				rec: &Record{
					DER:   der.data,
					Label: obj.attrs["CKA_LABEL"].str,
					Trust: make(catrust.TrustMap),
					Prov:  Provenance{Source: source, Line: obj.line},
				},
			}
			certs = append(certs, entry)
			if key, ok := issuerSerialKey(obj); ok {
				certsByKey[key] = entry
			}
		case "CKO_NSS_TRUST", "CKO_NETSCAPE_TRUST":
			trusts = append(trusts, obj)
		default:
			// CKO_NSS_BUILTIN_ROOT_LIST and friends carry no trust data.
			slog.Debug("skipping certdata object", "class", obj.class, "source", source, "line", obj.line)
		}
	}

	for _, obj := range trusts {
		key, ok := issuerSerialKey(obj)
		if !ok {
			h.HandleDiagnostic(Diagnostic{
				Code:     CodeMalformedRecord,
				Severity: SeverityWarning,
				Prov:     Provenance{Source: source, Line: obj.line},
				Message:  "trust object has no issuer and serial number",
			})
			continue
		}
		entry, ok := certsByKey[key]
		if !ok {
			h.HandleDiagnostic(Diagnostic{
				Code:     CodeMalformedRecord,
				Severity: SeverityWarning,
				Prov:     Provenance{Source: source, Line: obj.line},
				Message:  fmt.Sprintf("trust object %q matches no certificate", obj.attrs["CKA_LABEL"].str),
			})
			continue
		}
		trust, err := trustMapOf(obj)
		if err != nil {
			h.HandleDiagnostic(Diagnostic{
				Code:     CodeMalformedRecord,
				Severity: SeverityWarning,
				Prov:     Provenance{Source: source, Line: obj.line},
				Message:  err.Error(),
			})
			continue
		}
		entry.rec.Trust.Merge(trust)
		if entry.rec.Label == "" {
			entry.rec.Label = obj.attrs["CKA_LABEL"].str
		}
	}

	for _, entry := range certs {
		if err := h.HandleRecord(entry.rec); err != nil {
			return err
		}
	}
	return nil
}

// issuerSerialKey builds the composite join key for certificate/trust
// pairing from the raw issuer and serial DER.
func issuerSerialKey(obj *certdataObject) (string, bool) {
	issuer, ok1 := obj.attrs["CKA_ISSUER"]
	serial, ok2 := obj.attrs["CKA_SERIAL_NUMBER"]
	if !ok1 || !ok2 || len(issuer.data) == 0 || len(serial.data) == 0 {
		return "", false
	}
	return string(issuer.data) + "\x00" + string(serial.data), true
}

// trustMapOf extracts the per-purpose trust declarations of a trust object.
func trustMapOf(obj *certdataObject) (catrust.TrustMap, error) {
	m := make(catrust.TrustMap)
	for name, attr := range obj.attrs {
		if !strings.HasPrefix(name, "CKA_TRUST_") || attr.typ != "CK_TRUST" {
			continue
		}
		purpose, ok := trustAttrPurposes[name]
		if !ok {
			purpose = catrust.ParsePurpose(strings.TrimPrefix(name, "CKA_TRUST_"))
		}
		disp, err := parseTrustToken(attr.str)
		if err != nil {
			return nil, fmt.Errorf("trust attribute %s: %w", name, err)
		}
		if disp > m[purpose] {
			m[purpose] = disp
		}
	}
	return m, nil
}

// parseTrustToken maps a CKT_* trust constant to a disposition. Both
// CKT_NSS_* and the older CKT_NETSCAPE_* spellings are accepted.
func parseTrustToken(token string) (catrust.Disposition, error) {
	suffix := token
	for _, prefix := range []string{"CKT_NSS_", "CKT_NETSCAPE_"} {
		if strings.HasPrefix(token, prefix) {
			suffix = strings.TrimPrefix(token, prefix)
			break
		}
	}
	switch suffix {
	case "TRUSTED_DELEGATOR", "TRUSTED":
		return catrust.Trusted, nil
	case "NOT_TRUSTED", "UNTRUSTED":
		return catrust.Distrusted, nil
	case "MUST_VERIFY_TRUST", "MUST_VERIFY":
		return catrust.MustVerify, nil
	case "TRUST_UNKNOWN", "VALID_DELEGATOR":
		return catrust.Unspecified, nil
	default:
		return catrust.Unspecified, fmt.Errorf("unknown trust constant %q", token)
	}
}

// decodeMultilineOctal consumes "\ooo" escape lines up to the closing END
// and returns the decoded bytes plus the number of lines consumed. On a bad
// escape it still drains the value through END so the caller resumes on the
// next attribute.
func decodeMultilineOctal(sc *bufio.Scanner) ([]byte, int, error) {
	var out []byte
	var firstErr error
	consumed := 0
	for sc.Scan() {
		consumed++
		text := strings.TrimSpace(sc.Text())
		if text == "END" {
			if firstErr != nil {
				return nil, consumed, firstErr
			}
			return out, consumed, nil
		}
		if firstErr != nil {
			continue
		}
		for _, chunk := range strings.Split(text, "\\") {
			if chunk == "" {
				continue
			}
			n, err := strconv.ParseUint(chunk, 8, 8)
			if err != nil {
				firstErr = fmt.Errorf("bad octal escape %q: %w", "\\"+chunk, err)
				break
			}
			out = append(out, byte(n))
		}
	}
	if firstErr != nil {
		return nil, consumed, firstErr
	}
	return nil, consumed, fmt.Errorf("unterminated MULTILINE_OCTAL value")
}

// decodeCertdataString decodes a quoted UTF8 attribute value. certdata
// escapes '"' as \" and backslash as \\.
func decodeCertdataString(s string) (string, error) {
	if len(s) < 2 || !strings.HasPrefix(s, `"`) || !strings.HasSuffix(s, `"`) {
		return "", fmt.Errorf("string value %q is not quoted", s)
	}
	s = s[1 : len(s)-1]
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		return "", fmt.Errorf("string value ends with dangling escape")
	}
	return b.String(), nil
}
