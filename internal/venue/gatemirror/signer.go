package gatemirror

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// Signer produces Gate API v4 request signatures: HMAC-SHA512 over
// method, path, query string, the SHA-512 of the body, and the unix
// timestamp, newline-joined.
type Signer struct {
	apiKey    string
	apiSecret string
}

// NewSigner creates a request signer.
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{apiKey: apiKey, apiSecret: apiSecret}
}

// APIKey returns the key sent in the KEY header.
func (s *Signer) APIKey() string { return s.apiKey }

// Sign returns the hex signature for one request.
func (s *Signer) Sign(method, path, query, body string, timestamp int64) string {
	hasher := sha512.New()
	if body != "" {
		hasher.Write([]byte(body))
	}
	bodyHash := hex.EncodeToString(hasher.Sum(nil))

	message := fmt.Sprintf("%s\n%s\n%s\n%s\n%d", method, path, query, bodyHash, timestamp)

	mac := hmac.New(sha512.New, []byte(s.apiSecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
