package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSubject returns the hex SHA-256 of an identifier, for audit payloads
// that must not carry raw user ids. Empty in, empty out.
func HashSubject(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
