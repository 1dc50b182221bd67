package security

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// SignatureHeader is the canonical header carrying the webhook signature.
// Older Clockify deliveries used the alternate spellings, which are still
// accepted; callers can tell them apart via Resolution.Canonical.
const SignatureHeader = "Clockify-Signature"

var alternateHeaders = []string{
	"Clockify-Webhook-Signature",
	"X-Clockify-Signature",
	"X-Webhook-Signature",
}

var (
	// ErrNoSignature is returned when no signature header is present.
	ErrNoSignature = errors.New("security: missing signature header")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("security: signature verification failed")
)

// Resolution identifies which header supplied the signature value.
type Resolution struct {
	Value     string
	Header    string
	Canonical bool
}

// ResolveSignature extracts the signature from the request, preferring the
// canonical header over the legacy alternates.
func ResolveSignature(r *http.Request) (Resolution, error) {
	if v := strings.TrimSpace(r.Header.Get(SignatureHeader)); v != "" {
		return Resolution{Value: v, Header: SignatureHeader, Canonical: true}, nil
	}
	for _, h := range alternateHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return Resolution{Value: v, Header: h}, nil
		}
	}
	return Resolution{}, ErrNoSignature
}

// Outcome describes a completed verification, for logging and metrics.
type Outcome struct {
	Resolution Resolution
	Scheme     string // "jwt" or "hmac"
	Workspace  string
}

// Validator verifies webhook delivery signatures. JWT signatures are the
// current scheme; raw HMAC digests are accepted only when a shared secret
// was configured for backward compatibility.
type Validator struct {
	jwt  *JWTVerifier
	hmac *HMACVerifier
}

// NewValidator builds a validator. Either verifier may be nil; at least one
// must be set or every verification fails.
func NewValidator(jwtVerifier *JWTVerifier, hmacVerifier *HMACVerifier) *Validator {
	return &Validator{jwt: jwtVerifier, hmac: hmacVerifier}
}

// Verify checks the request signature against the raw body. A value shaped
// like an HMAC digest ("sha256=<hex>") goes to the HMAC verifier, anything
// else is treated as a JWT.
func (v *Validator) Verify(ctx context.Context, r *http.Request, body []byte) (*Outcome, error) {
	res, err := ResolveSignature(r)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Resolution: res}

	if looksLikeDigest(res.Value) {
		if v.hmac == nil {
			return out, ErrInvalidSignature
		}
		out.Scheme = "hmac"
		if err := v.hmac.Verify(res.Value, body); err != nil {
			return out, err
		}
		return out, nil
	}

	if v.jwt == nil {
		return out, ErrInvalidSignature
	}
	out.Scheme = "jwt"
	claims, err := v.jwt.Verify(ctx, res.Value)
	if err != nil {
		return out, err
	}
	out.Workspace = claims.Workspace
	return out, nil
}

// looksLikeDigest reports whether the value is an HMAC digest rather than a
// JWT: either "sha256=<hex>" or a bare 64-char hex string.
func looksLikeDigest(v string) bool {
	if strings.HasPrefix(v, "sha256=") {
		return true
	}
	if len(v) != 64 {
		return false
	}
	for _, c := range v {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
