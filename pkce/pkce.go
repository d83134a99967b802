// Package pkce generates the verifier/challenge pairs that bind a
// conversation's closing step to the request that opened it.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierBytes is the entropy behind each verifier. 32 bytes encode to a
// 43-character base64url string.
const verifierBytes = 32

// Pair holds a challenge and the verifier it was derived from. The
// challenge is sent when a conversation opens; the verifier is revealed
// exactly once, when the conversation closes.
type Pair struct {
	Verifier  string
	Challenge string
}

// Generate returns a fresh Pair. The verifier is 32 random bytes,
// base64url-encoded; the challenge is the SHA-256 of the verifier,
// base64url-encoded. Pairs must never be reused across conversations.
func Generate() (Pair, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return Pair{}, fmt.Errorf("generating verifier entropy: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	return Pair{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}
