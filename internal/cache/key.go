package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeySeparator joins normalized components before hashing.
const KeySeparator = ":"

// KeyFrom derives the content address for a query. Each component is
// lower-cased and trimmed, the results are joined with KeySeparator, and the
// SHA-256 of the joined string is returned as 64 lowercase hex characters.
//
// Component order is part of the key: KeyFrom("a", "b") != KeyFrom("b", "a").
// Callers that want order independence must sort before calling.
func KeyFrom(components ...string) string {
	norm := make([]string, len(components))
	for i, c := range components {
		norm[i] = strings.ToLower(strings.TrimSpace(c))
	}
	h := sha256.Sum256([]byte(strings.Join(norm, KeySeparator)))
	return hex.EncodeToString(h[:])
}

// shortKey is the log-friendly prefix of a key.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
