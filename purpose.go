package catrust

import (
	"encoding/asn1"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Purpose identifies a usage context for which trust is independently
// declared. The set is open: purposes not known to this package are carried
// through verbatim, either as a normalized name or as a dotted OID string.
type Purpose string

// Well-known trust purposes.
const (
	PurposeServerAuth      Purpose = "server-auth"
	PurposeEmailProtection Purpose = "email-protection"
	PurposeCodeSigning     Purpose = "code-signing"
)

// purposeOIDs maps well-known purposes to their extended-key-usage OIDs,
// used in the OpenSSL trusted-certificate auxiliary encoding.
var purposeOIDs = map[Purpose]asn1.ObjectIdentifier{
	PurposeServerAuth:      {1, 3, 6, 1, 5, 5, 7, 3, 1},
	PurposeCodeSigning:     {1, 3, 6, 1, 5, 5, 7, 3, 3},
	PurposeEmailProtection: {1, 3, 6, 1, 5, 5, 7, 3, 4},
}

// OID returns the extended-key-usage OID for the purpose. Purposes written
// as dotted OID strings (the pass-through form for purposes this package
// does not recognize) are parsed directly. The second return is false when
// the purpose has no OID representation.
func (p Purpose) OID() (asn1.ObjectIdentifier, bool) {
	if oid, ok := purposeOIDs[p]; ok {
		return oid, true
	}
	s := string(p)
	if !strings.ContainsRune(s, '.') {
		return nil, false
	}
	parts := strings.Split(s, ".")
	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, false
		}
		oid = append(oid, n)
	}
	return oid, true
}

// PurposeFromOID returns the purpose for an extended-key-usage OID. Unknown
// OIDs map to their dotted string form so they round-trip losslessly.
func PurposeFromOID(oid asn1.ObjectIdentifier) Purpose {
	for p, known := range purposeOIDs {
		if known.Equal(oid) {
			return p
		}
	}
	return Purpose(oid.String())
}

// ParsePurpose normalizes a purpose name: well-known names and dotted OIDs
// pass through, anything else is lowercased with underscores collapsed to
// hyphens (the pass-through form for trust-list attributes such as
// CKA_TRUST_TIME_STAMPING → "time-stamping").
func ParsePurpose(s string) Purpose {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return Purpose(s)
}

// Disposition is a per-purpose trust declaration. The zero value is
// Unspecified. Ordering is significant: merging two dispositions for the
// same purpose keeps the greater one, so explicit distrust always overrides
// trust, and trust overrides the weaker declarations.
type Disposition uint8

const (
	// Unspecified means no declaration was made for the purpose.
	Unspecified Disposition = iota
	// MustVerify is an explicit "not an anchor, but not distrusted either"
	// declaration (NSS CKT_NSS_MUST_VERIFY_TRUST).
	MustVerify
	// Trusted declares the certificate a trust anchor for the purpose.
	Trusted
	// Distrusted declares the certificate must not be trusted for the
	// purpose, overriding any trust declaration from another source.
	Distrusted
)

var dispositionNames = map[Disposition]string{
	Unspecified: "unspecified",
	MustVerify:  "must-verify",
	Trusted:     "trusted",
	Distrusted:  "distrusted",
}

func (d Disposition) String() string {
	if s, ok := dispositionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("disposition(%d)", uint8(d))
}

// ParseDisposition parses the string form produced by String.
func ParseDisposition(s string) (Disposition, error) {
	for d, name := range dispositionNames {
		if name == s {
			return d, nil
		}
	}
	return Unspecified, fmt.Errorf("unknown trust disposition %q", s)
}

// TrustMap is a per-purpose trust declaration set. Purposes absent from the
// map are Unspecified.
type TrustMap map[Purpose]Disposition

// Clone returns a copy of the map. Clone of nil returns an empty map.
func (m TrustMap) Clone() TrustMap {
	out := make(TrustMap, len(m))
	maps.Copy(out, m)
	return out
}

// Equal reports whether two maps declare identical dispositions. Explicit
// Unspecified entries are equivalent to absence.
func (m TrustMap) Equal(other TrustMap) bool {
	for p, d := range m {
		if other[p] != d {
			return false
		}
	}
	for p, d := range other {
		if m[p] != d {
			return false
		}
	}
	return true
}

// Purposes returns the declared (non-Unspecified) purposes in sorted order,
// for deterministic iteration.
func (m TrustMap) Purposes() []Purpose {
	out := make([]Purpose, 0, len(m))
	for p, d := range m {
		if d != Unspecified {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// PurposesWith returns the purposes carrying the given disposition, sorted.
func (m TrustMap) PurposesWith(d Disposition) []Purpose {
	var out []Purpose
	for p, pd := range m {
		if pd == d {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// IsAnchor reports whether the certificate is a usable trust anchor: trusted
// for at least one purpose and distrusted for none.
func (m TrustMap) IsAnchor() bool {
	trusted := false
	for _, d := range m {
		switch d {
		case Distrusted:
			return false
		case Trusted:
			trusted = true
		}
	}
	return trusted
}

// Conflicts returns the purposes for which m and other make contradictory
// explicit Trusted/Distrusted declarations, sorted.
func (m TrustMap) Conflicts(other TrustMap) []Purpose {
	var out []Purpose
	for p, d := range m {
		od := other[p]
		if (d == Trusted && od == Distrusted) || (d == Distrusted && od == Trusted) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// Merge folds other into m, keeping the stronger disposition per purpose:
// Distrusted > Trusted > MustVerify > Unspecified. Contradictions are not
// detected here; callers use Conflicts before merging when they need to
// report them.
func (m TrustMap) Merge(other TrustMap) {
	for p, d := range other {
		if d > m[p] {
			m[p] = d
		}
	}
}
