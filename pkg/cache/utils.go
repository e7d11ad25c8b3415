package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateKey joins a namespace and an id.
func GenerateKey(prefix string, id string) string {
	return prefix + ":" + id
}

// HashKey returns a short stable digest for long or user-supplied keys.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}
