package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainModel separates model hashes from any other content hash.
const DomainModel = "stateengine/model/v1"

// Hash returns a content hash of the model. Two models with the same
// declarations in the same order hash identically.
// Format: hex(SHA256(domain + 0x00 + json)).
func Hash(r *Raw) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("hash model: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainModel))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
