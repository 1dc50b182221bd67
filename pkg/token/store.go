package token

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Default lifetimes for workspace tokens. Clockify issues a fresh auth token
// on every lifecycle callback; a stored token older than DefaultTTL is
// considered stale and must not be used for API calls.
const (
	DefaultTTL    = 24 * time.Hour
	RotationGrace = 15 * time.Minute
)

var (
	// ErrNotFound is returned when no token is stored for the workspace.
	ErrNotFound = errors.New("token: workspace not found")
	// ErrExpired is returned when a stored token has outlived its TTL.
	ErrExpired = errors.New("token: token expired")
)

// WorkspaceToken is the credential material captured from an INSTALLED
// lifecycle callback, keyed by workspace.
type WorkspaceToken struct {
	WorkspaceID string    `json:"workspaceId"`
	Token       string    `json:"token"`
	APIBaseURL  string    `json:"apiBaseUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RotatedAt   time.Time `json:"rotatedAt,omitempty"`

	// Previous holds the prior token for RotationGrace after a rotation,
	// so in-flight webhook deliveries signed against it still verify.
	Previous string `json:"previous,omitempty"`
}

// Valid reports whether the token can still be used at the given instant.
func (t *WorkspaceToken) Valid(now time.Time) bool {
	return t.Token != "" && now.Before(t.ExpiresAt)
}

// InGrace reports whether the previous token is still acceptable.
func (t *WorkspaceToken) InGrace(now time.Time) bool {
	return t.Previous != "" && !t.RotatedAt.IsZero() && now.Before(t.RotatedAt.Add(RotationGrace))
}

// Matches reports whether the candidate equals the current token or, within
// the rotation grace window, the previous one.
func (t *WorkspaceToken) Matches(candidate string, now time.Time) bool {
	if candidate == "" {
		return false
	}
	if t.Valid(now) && candidate == t.Token {
		return true
	}
	return t.InGrace(now) && candidate == t.Previous
}

// NormalizeAPIBaseURL trims trailing slashes and appends the /api/v1 prefix
// when the URL does not already carry a versioned path.
func NormalizeAPIBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if u == "" {
		return ""
	}
	if strings.Contains(u, "/api/") || strings.HasSuffix(u, "/api") {
		return u
	}
	return u + "/api/v1"
}

// New builds a WorkspaceToken with normalized fields and the default TTL.
func New(workspaceID, tok, apiBaseURL string, now time.Time) *WorkspaceToken {
	return &WorkspaceToken{
		WorkspaceID: workspaceID,
		Token:       tok,
		APIBaseURL:  NormalizeAPIBaseURL(apiBaseURL),
		CreatedAt:   now,
		ExpiresAt:   now.Add(DefaultTTL),
	}
}

// Store persists workspace tokens across lifecycle callbacks.
//
// Save overwrites any existing record without preserving rotation state;
// Rotate replaces the token while keeping the old value accessible for
// RotationGrace. Get returns ErrNotFound or ErrExpired for unusable records.
type Store interface {
	Save(ctx context.Context, t *WorkspaceToken) error
	Get(ctx context.Context, workspaceID string) (*WorkspaceToken, error)
	Rotate(ctx context.Context, workspaceID, newToken string, now time.Time) error
	Delete(ctx context.Context, workspaceID string) error
	Close() error
}
