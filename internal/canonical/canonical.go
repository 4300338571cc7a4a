// Package canonical provides deterministic serialization (RFC 8785, JSON
// Canonicalization Scheme) and SHA-256 content addressing for event payloads.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ErrNotCanonicalizable indicates the value cannot be represented as JSON.
var ErrNotCanonicalizable = errors.New("value is not canonicalizable")

// Marshal returns the canonical JSON bytes of v: object keys sorted
// lexicographically at every depth, array order preserved, no whitespace,
// no HTML escaping. Two semantically equal values yield identical bytes.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
	}
	return out, nil
}

// Hash returns the SHA-256 digest of b as a 64-character lowercase hex string.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashObject canonicalizes v and returns its content hash together with the
// canonical bytes that were hashed.
func HashObject(v any) (string, []byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", nil, err
	}
	return Hash(b), b, nil
}
