// Package cryptox holds the one-way hashing used to keep refresh tokens
// out of storage in plaintext.
package cryptox

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hasher turns a raw token into a deterministic digest suitable for storage
// and exact-match lookup.
type Hasher interface {
	Hash(token string) string
}

// Blake2bHasher hashes with BLAKE2b-256. When a key is configured the hash is
// a keyed MAC, so a leaked table of hashes cannot be checked offline without
// the key.
type Blake2bHasher struct {
	key []byte
}

// NewBlake2bHasher returns a hasher using key (may be empty, at most 64 bytes).
func NewBlake2bHasher(key []byte) (*Blake2bHasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("blake2b key too long: %d bytes, max %d", len(key), blake2b.Size)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Blake2bHasher{key: k}, nil
}

// Hash returns the lowercase hex digest of token.
func (h *Blake2bHasher) Hash(token string) string {
	// blake2b.New256 only fails for keys over 64 bytes, rejected in the constructor.
	d, _ := blake2b.New256(h.key)
	d.Write([]byte(token))
	return hex.EncodeToString(d.Sum(nil))
}

// EqualHash compares two digests in constant time.
func EqualHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
