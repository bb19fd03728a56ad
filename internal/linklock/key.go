// Package linklock rewrites outbound links in Markdown bodies into locked
// links whose targets are AES-GCM encrypted, base64url encoded payloads.
package linklock

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	// DefaultIterations and DefaultSalt match the blog's browser-side decrypt dialog.
	DefaultIterations = 100_000
	DefaultSalt       = "static_salt_for_blog"

	// Prefix marks a link target that already holds an encrypted payload.
	Prefix = "encrypted:"
)

// Key is a derived symmetric key. It is passed by value and never persisted.
type Key [KeySize]byte

// DeriveKey derives a Key from passphrase and salt with PBKDF2-HMAC-SHA256.
// A non-positive iterations value selects DefaultIterations.
func DeriveKey(passphrase, salt string, iterations int) (Key, error) {
	if passphrase == "" {
		return Key{}, errors.New("linklock: passphrase is empty")
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	var k Key
	copy(k[:], pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, KeySize, sha256.New))
	return k, nil
}
