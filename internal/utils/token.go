package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// AccessTokenBytes is 256 bits of entropy.
const AccessTokenBytes = 32

// NewAccessToken returns a URL-safe random token.
func NewAccessToken() (string, error) {
	b := make([]byte, AccessTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MaskToken keeps a short prefix so log lines can be correlated without leaking the secret.
func MaskToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 6 {
		return "***"
	}
	return tok[:6] + "***"
}
