// Package checksum computes the content digests recorded in the build journal.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Equal reports whether data hashes to the hex digest want.
// An empty want never matches.
func Equal(data []byte, want string) bool {
	return want != "" && Sum(data) == want
}
