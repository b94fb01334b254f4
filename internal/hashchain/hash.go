// Package hashchain provides the deterministic hash primitive and the
// tamper-evident, hash-chained ledger built on top of it.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash returns the lowercase hex-encoded SHA-256 digest of the
// concatenation of parts. It is synchronous and deterministic: identical
// inputs always yield identical output, independent of platform.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}
