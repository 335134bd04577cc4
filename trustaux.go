package catrust

import (
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// The OpenSSL trusted-certificate format appends an auxiliary structure to
// the certificate DER inside a "TRUSTED CERTIFICATE" PEM block:
//
//	CertAux ::= SEQUENCE {
//	    trust   SEQUENCE OF OBJECT IDENTIFIER,
//	    reject  [0] IMPLICIT SEQUENCE OF OBJECT IDENTIFIER OPTIONAL
//	}
//
// The trust list holds the purposes the certificate is anchored for, the
// reject list the purposes it is explicitly distrusted for.

var auxRejectTag = cbasn1.Tag(0).ContextSpecific().Constructed()

// MarshalCertAux encodes trust and reject purpose OID lists as a CertAux
// structure. The trust sequence is always present, even when empty.
func MarshalCertAux(trust, reject []asn1.ObjectIdentifier) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(aux *cryptobyte.Builder) {
		aux.AddASN1(cbasn1.SEQUENCE, func(seq *cryptobyte.Builder) {
			for _, oid := range trust {
				seq.AddASN1ObjectIdentifier(oid)
			}
		})
		if len(reject) > 0 {
			aux.AddASN1(auxRejectTag, func(seq *cryptobyte.Builder) {
				for _, oid := range reject {
					seq.AddASN1ObjectIdentifier(oid)
				}
			})
		}
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding certificate aux: %w", err)
	}
	return out, nil
}

// ParseCertAux decodes a CertAux structure, returning the trust and reject
// purpose OID lists.
func ParseCertAux(data []byte) (trust, reject []asn1.ObjectIdentifier, err error) {
	s := cryptobyte.String(data)
	var aux cryptobyte.String
	if !s.ReadASN1(&aux, cbasn1.SEQUENCE) {
		return nil, nil, errors.New("certificate aux: malformed outer sequence")
	}
	var trustSeq cryptobyte.String
	if !aux.ReadASN1(&trustSeq, cbasn1.SEQUENCE) {
		return nil, nil, errors.New("certificate aux: malformed trust sequence")
	}
	for !trustSeq.Empty() {
		var oid asn1.ObjectIdentifier
		if !trustSeq.ReadASN1ObjectIdentifier(&oid) {
			return nil, nil, errors.New("certificate aux: malformed trust OID")
		}
		trust = append(trust, oid)
	}
	if aux.PeekASN1Tag(auxRejectTag) {
		var rejectSeq cryptobyte.String
		if !aux.ReadASN1(&rejectSeq, auxRejectTag) {
			return nil, nil, errors.New("certificate aux: malformed reject sequence")
		}
		for !rejectSeq.Empty() {
			var oid asn1.ObjectIdentifier
			if !rejectSeq.ReadASN1ObjectIdentifier(&oid) {
				return nil, nil, errors.New("certificate aux: malformed reject OID")
			}
			reject = append(reject, oid)
		}
	}
	return trust, reject, nil
}

// SplitTrustedCertificate splits the content of a TRUSTED CERTIFICATE PEM
// block into the certificate DER and the trailing CertAux bytes. The aux may
// be empty when the block carries no trust metadata.
func SplitTrustedCertificate(content []byte) (certDER, aux []byte, err error) {
	s := cryptobyte.String(content)
	var cert cryptobyte.String
	if !s.ReadASN1Element(&cert, cbasn1.SEQUENCE) {
		return nil, nil, errors.New("trusted certificate: malformed certificate sequence")
	}
	return cert, s, nil
}

// TrustMapToAux converts a trust map to CertAux trust/reject OID lists.
// Purposes without an OID representation are skipped; they are carried by
// the bundle's comment headers instead.
func TrustMapToAux(m TrustMap) (trust, reject []asn1.ObjectIdentifier) {
	for _, p := range m.PurposesWith(Trusted) {
		if oid, ok := p.OID(); ok {
			trust = append(trust, oid)
		}
	}
	for _, p := range m.PurposesWith(Distrusted) {
		if oid, ok := p.OID(); ok {
			reject = append(reject, oid)
		}
	}
	return trust, reject
}

// AuxToTrustMap converts CertAux trust/reject OID lists to a trust map.
func AuxToTrustMap(trust, reject []asn1.ObjectIdentifier) TrustMap {
	m := make(TrustMap, len(trust)+len(reject))
	for _, oid := range trust {
		m[PurposeFromOID(oid)] = Trusted
	}
	for _, oid := range reject {
		m[PurposeFromOID(oid)] = Distrusted
	}
	return m
}
