package security

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MaxTokenTTL caps how far in the future a signature token may expire.
// Clockify mints short-lived tokens per delivery; anything longer than a
// day is rejected as suspicious.
const MaxTokenTTL = 24 * time.Hour

// DefaultLeeway absorbs clock skew between Clockify and the addon host.
const DefaultLeeway = 30 * time.Second

// Claims is the subset of JWT claims an addon cares about.
type Claims struct {
	Subject   string
	Workspace string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// KeySource supplies the public key for a given key ID. Implemented by
// StaticKeys and by the JWKS client.
type KeySource interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// StaticKeys serves verification keys from a fixed map, keyed by kid.
// A single entry under the empty string serves tokens without a kid header.
type StaticKeys map[string]crypto.PublicKey

func (s StaticKeys) Key(_ context.Context, kid string) (crypto.PublicKey, error) {
	if k, ok := s[kid]; ok {
		return k, nil
	}
	if k, ok := s[""]; ok && len(s) == 1 {
		return k, nil
	}
	return nil, fmt.Errorf("security: no key for kid %q", kid)
}

// JWTVerifier validates Clockify signature tokens. Only asymmetric
// algorithms are accepted; HS* would let anyone holding the public
// material forge deliveries.
type JWTVerifier struct {
	keys    KeySource
	methods []string
	leeway  time.Duration
	subject string
	now     func() time.Time
}

// JWTOption customizes a verifier.
type JWTOption func(*JWTVerifier)

// WithLeeway overrides the clock-skew allowance.
func WithLeeway(d time.Duration) JWTOption {
	return func(v *JWTVerifier) { v.leeway = d }
}

// WithExpectedSubject requires the token "sub" claim to equal the addon key.
func WithExpectedSubject(sub string) JWTOption {
	return func(v *JWTVerifier) { v.subject = sub }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) JWTOption {
	return func(v *JWTVerifier) { v.now = now }
}

// NewJWTVerifier builds a verifier accepting RS256 and ES256 tokens from
// the given key source.
func NewJWTVerifier(keys KeySource, opts ...JWTOption) *JWTVerifier {
	v := &JWTVerifier{
		keys:    keys,
		methods: []string{"RS256", "ES256"},
		leeway:  DefaultLeeway,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses and validates the token, returning its claims.
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	}
	tok, err := jwt.Parse(raw, keyfunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	mapClaims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidSignature
	}

	c := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		c.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if ws, ok := mapClaims["workspaceId"].(string); ok {
		c.Workspace = ws
	}

	if v.subject != "" && c.Subject != v.subject {
		return nil, fmt.Errorf("%w: unexpected subject %q", ErrInvalidSignature, c.Subject)
	}
	if c.ExpiresAt.After(v.now().Add(MaxTokenTTL)) {
		return nil, fmt.Errorf("%w: token lifetime exceeds %s", ErrInvalidSignature, MaxTokenTTL)
	}
	return c, nil
}
