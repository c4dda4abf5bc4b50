// Package checksum fingerprints snapshot payloads.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is the prefix length used in log lines.
const shortLen = 12

// Sum returns the hex-encoded SHA-256 digest of an encoded snapshot.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first hex characters of Sum(data).
func Short(data []byte) string {
	return Sum(data)[:shortLen]
}
