// Package auth implements the optional HMAC request authenticator used by
// the HTTP tunnel endpoints. It runs entirely at the transport boundary.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header carries the request authenticator when a secret is configured.
const Header = "X-Lab-Auth"

// Tag computes the full-length request authenticator:
// hex(hmac-sha256(secret, method|path|token)).
func Tag(secret, method, path, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte{'|'})
	mac.Write([]byte(path))
	mac.Write([]byte{'|'})
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented tag in constant time.
func Verify(secret, method, path, token, presented string) bool {
	want := Tag(secret, method, path, token)
	return len(presented) == len(want) && hmac.Equal([]byte(presented), []byte(want))
}
