// Package crypto implements redaction digests and credential comparison.
package crypto

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// digestLen is the number of digest bytes kept for log correlation.
const digestLen = 8

// TokenDigest returns a short stable digest of a secret-bearing value
// (referrer tokens, API keys) so it can be correlated in logs without being exposed.
func TokenDigest(v string) string {
	if v == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(v))
	return hex.EncodeToString(sum[:digestLen])
}

// VerifyAPIKey compares a presented bearer key against the expected one in constant time.
// Both sides are hashed first so the comparison does not leak the key length.
func VerifyAPIKey(got, want string) bool {
	if want == "" {
		return false
	}
	g := blake2b.Sum256([]byte(got))
	w := blake2b.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}
