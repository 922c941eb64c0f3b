package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// RefreshTokenBytes is the entropy of an opaque refresh token.
const RefreshTokenBytes = 64

// NewRefreshToken returns a URL-safe opaque refresh token and its storage digest.
func NewRefreshToken() (token string, tokenHash string, err error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashToken(token), nil
}

// NewSingleUseToken returns a random identifier for verification and reset links.
func NewSingleUseToken() (token string, tokenHash string) {
	token = uuid.NewString()
	return token, HashToken(token)
}

// HashToken is the digest under which token values are stored and looked up.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
