package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Credential derives the deterministic bearer token for an account.
// Changing either the username or the password rotates the token.
func Credential(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}
