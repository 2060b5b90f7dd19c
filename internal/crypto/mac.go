package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// HMAC returns HMAC-SHA256(key, data).
func HMAC(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// HashString blinds s under key. The output is unpadded base64url so it can
// travel in identifiers.
func HashString(key []byte, s string) string {
	return base64.RawURLEncoding.EncodeToString(HMAC(key, []byte(s)))
}

// Equal compares two MACs in constant time.
func Equal(a, b []byte) bool { return hmac.Equal(a, b) }
