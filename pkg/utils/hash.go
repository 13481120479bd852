package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns a hex digest used as a cache key for chat utterances.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
