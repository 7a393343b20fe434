package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hasher computes lowercase hex digests over byte and JSON inputs.
type Hasher struct{}

// Default returns the standard hasher.
func Default() *Hasher {
	return &Hasher{}
}

// Hash computes a SHA-256 digest of the input data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString computes a hash of a string.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashJSON computes a hash of a JSON-serializable value. Struct fields
// serialize in declaration order, so the same value always yields the
// same digest.
func (h *Hasher) HashJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return h.Hash(data), nil
}
