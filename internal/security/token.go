package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const opaqueTokenBytes = 48

// NewOpaqueToken returns a hex-encoded random bearer string. 48 bytes of
// entropy, well above the 32-byte floor expected of refresh tokens.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashRefreshToken derives the ledger key for a raw refresh token. The pepper
// keeps a leaked database from being matched against captured tokens offline.
func HashRefreshToken(raw, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + raw))
	return hex.EncodeToString(sum[:])
}
