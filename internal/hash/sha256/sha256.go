// Package sha256 digests archived listing pages with SHA-256.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher. Digests are hex encoded and truncated to
// the configured number of characters.
type Hasher struct {
	size int
}

// New returns a hasher whose digests have at most size hex characters; zero
// or less keeps the full 64-character digest.
func New(size int) *Hasher {
	if size <= 0 || size > hex.EncodedLen(sha256.Size) {
		size = hex.EncodedLen(sha256.Size)
	}
	return &Hasher{size: size}
}

// Hash returns the (possibly truncated) hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:h.size], nil
}
