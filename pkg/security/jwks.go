package security

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// JWKSClient fetches verification keys from a JWKS endpoint and caches them.
// A miss on a kid triggers one refresh before failing, so key rotations on
// the Clockify side pick up without restarting the addon. Miss-triggered
// refreshes are rate limited: a stream of tokens with bogus kids must not
// turn into a fetch per request against the key server.
type JWKSClient struct {
	url      string
	client   *http.Client
	refresh  time.Duration
	cooldown time.Duration

	mu      sync.RWMutex
	keys    map[string]crypto.PublicKey
	fetched time.Time
}

// missCooldown is the minimum interval between fetches triggered by an
// unknown kid.
const missCooldown = time.Minute

// NewJWKSClient builds a client for the given JWKS URL. Keys are cached
// for an hour between refreshes.
func NewJWKSClient(url string) *JWKSClient {
	return &JWKSClient{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		refresh:  time.Hour,
		cooldown: missCooldown,
		keys:     make(map[string]crypto.PublicKey),
	}
}

// Key returns the public key for the kid, refreshing the cache when the
// kid is unknown or the cache is stale.
func (c *JWKSClient) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	age := time.Since(c.fetched)
	c.mu.RUnlock()
	if ok && age <= c.refresh {
		return key, nil
	}
	if !ok && age <= c.cooldown {
		// Recently fetched and the kid still is not there.
		return nil, fmt.Errorf("security: no key for kid %q", kid)
	}

	if err := c.fetch(ctx); err != nil {
		// Serve the cached key through a fetch outage.
		if ok {
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("security: no key for kid %q", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (c *JWKSClient) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("building JWKS request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching JWKS: unexpected status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("security: JWKS document at %s contained no usable keys", c.url)
	}

	c.mu.Lock()
	c.keys = keys
	c.fetched = time.Now()
	c.mu.Unlock()
	return nil
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("decoding modulus: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("decoding exponent: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	case "EC":
		if k.Crv != "P-256" {
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, fmt.Errorf("decoding x: %w", err)
		}
		y, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, fmt.Errorf("decoding y: %w", err)
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}
