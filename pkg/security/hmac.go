package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HMACVerifier checks legacy "sha256=<hex>" body digests against a shared
// secret. Comparison is constant time.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier builds a verifier for the given shared secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify checks the signature value against the request body.
func (v *HMACVerifier) Verify(value string, body []byte) error {
	hexDigest := strings.TrimPrefix(value, "sha256=")
	provided, err := hex.DecodeString(hexDigest)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if subtle.ConstantTimeCompare(provided, mac.Sum(nil)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the header value for a body, for use in tests and clients.
func (v *HMACVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
