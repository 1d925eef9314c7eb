package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSecret hashes the raw secret using the same strategy as issuance.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
