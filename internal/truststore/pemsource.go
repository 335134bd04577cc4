package truststore

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sensiblebit/catrust"
)

func init() {
	RegisterParser(&PEMParser{})
}

// PEMParser reads the PEM trust-bundle format: a sequence of certificate
// blocks, each optionally preceded by comment headers declaring diagnostic
// and trust metadata:
//
//	# Label: Example Root CA
//	# Trust: server-auth email-protection
//	# Distrust: code-signing
//	# MustVerify: ...
//
// Both plain CERTIFICATE blocks and OpenSSL TRUSTED CERTIFICATE blocks are
// accepted; the latter carry trust/reject purpose OIDs in their appended
// certificate aux, which is merged with the comment headers. This is the
// format the pem-bundle emitter produces, so emitted bundles re-parse to
// identical records.
type PEMParser struct{}

// Format implements Parser.
func (*PEMParser) Format() string { return "pem" }

// pemMeta accumulates comment headers preceding a block.
type pemMeta struct {
	label string
	trust catrust.TrustMap
}

func (m *pemMeta) reset() {
	m.label = ""
	m.trust = nil
}

func (m *pemMeta) declare(purposes string, d catrust.Disposition) {
	if m.trust == nil {
		m.trust = make(catrust.TrustMap)
	}
	for _, f := range strings.Fields(purposes) {
		p := catrust.ParsePurpose(f)
		if d > m.trust[p] {
			m.trust[p] = d
		}
	}
}

// Parse implements Parser.
func (p *PEMParser) Parse(data []byte, source string, h RecordHandler) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var meta pemMeta
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		switch {
		case text == "":
			continue
		case strings.HasPrefix(text, "#"):
			body := strings.TrimSpace(strings.TrimPrefix(text, "#"))
			if key, value, ok := strings.Cut(body, ":"); ok {
				value = strings.TrimSpace(value)
				switch key {
				case "Label":
					meta.label = value
				case "Trust":
					meta.declare(value, catrust.Trusted)
				case "Distrust":
					meta.declare(value, catrust.Distrusted)
				case "MustVerify":
					meta.declare(value, catrust.MustVerify)
				}
			}
		case strings.HasPrefix(text, "-----BEGIN ") && strings.HasSuffix(text, "-----"):
			blockType := strings.TrimSuffix(strings.TrimPrefix(text, "-----BEGIN "), "-----")
			begin := line
			content, consumed, err := readPEMBody(sc, blockType)
			line += consumed
			if err != nil {
				h.HandleDiagnostic(Diagnostic{
					Code:     CodeMalformedRecord,
					Severity: SeverityWarning,
					Prov:     Provenance{Source: source, Line: begin},
					Message:  fmt.Sprintf("%s block: %v", blockType, err),
				})
				meta.reset()
				continue
			}
			if err := p.handleBlock(blockType, content, meta, Provenance{Source: source, Line: begin}, h); err != nil {
				return err
			}
			meta.reset()
		default:
			// Free text between blocks is tolerated, matching how bundle
			// consumers treat PEM files.
			slog.Debug("ignoring non-PEM line", "source", source, "line", line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}
	return nil
}

// handleBlock turns one decoded PEM block into a record.
func (p *PEMParser) handleBlock(blockType string, content []byte, meta pemMeta, prov Provenance, h RecordHandler) error {
	var (
		der   []byte
		trust catrust.TrustMap
	)
	switch blockType {
	case "CERTIFICATE":
		der = content
		trust = meta.trust.Clone()
	case "TRUSTED CERTIFICATE":
		certDER, aux, err := catrust.SplitTrustedCertificate(content)
		if err != nil {
			h.HandleDiagnostic(Diagnostic{
				Code:     CodeMalformedRecord,
				Severity: SeverityWarning,
				Prov:     prov,
				Message:  err.Error(),
			})
			return nil
		}
		trust = meta.trust.Clone()
		if len(aux) > 0 {
			trustOIDs, rejectOIDs, err := catrust.ParseCertAux(aux)
			if err != nil {
				h.HandleDiagnostic(Diagnostic{
					Code:     CodeMalformedRecord,
					Severity: SeverityWarning,
					Prov:     prov,
					Message:  err.Error(),
				})
				return nil
			}
			trust.Merge(catrust.AuxToTrustMap(trustOIDs, rejectOIDs))
		}
		der = certDER
	default:
		slog.Debug("skipping PEM block", "type", blockType, "source", prov.Source, "line", prov.Line)
		return nil
	}

	if err := catrust.CheckCertificateDER(der); err != nil {
		h.HandleDiagnostic(Diagnostic{
			Code:     CodeInvalidEncoding,
			Severity: SeverityWarning,
			Prov:     prov,
			Message:  err.Error(),
		})
		return nil
	}

	return h.HandleRecord(&Record{
		DER:   der,
		Label: meta.label,
		Trust: trust,
		Prov:  prov,
	})
}

// readPEMBody consumes base64 lines up to the matching END marker and
// decodes them. Returns the decoded bytes and lines consumed.
func readPEMBody(sc *bufio.Scanner, blockType string) ([]byte, int, error) {
	end := "-----END " + blockType + "-----"
	var b64 strings.Builder
	consumed := 0
	for sc.Scan() {
		consumed++
		text := strings.TrimSpace(sc.Text())
		if text == end {
			content, err := base64.StdEncoding.DecodeString(b64.String())
			if err != nil {
				return nil, consumed, fmt.Errorf("invalid base64: %w", err)
			}
			if len(content) == 0 {
				return nil, consumed, fmt.Errorf("empty block")
			}
			return content, consumed, nil
		}
		b64.WriteString(text)
	}
	return nil, consumed, fmt.Errorf("missing %s", end)
}
