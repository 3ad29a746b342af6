package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainPlan prefixes physical plan hashes. The version suffix changes when
// the hashed encoding does.
const DomainPlan = "relplan/plan/v1"

// sum is SHA256(domain || 0x00 || data), hex encoded.
func sum(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical JSON encoding of v under domain.
// Values that encode identically share a fingerprint whatever their map
// iteration order.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return sum(domain, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
func MustFingerprint(domain string, v any) string {
	fp, err := Fingerprint(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
