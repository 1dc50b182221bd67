package token

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps workspace tokens in process memory. Suitable for tests
// and single-instance deployments without persistence requirements.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*WorkspaceToken
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]*WorkspaceToken)}
}

func (s *MemoryStore) Save(_ context.Context, t *WorkspaceToken) error {
	cp := *t
	s.mu.Lock()
	s.tokens[t.WorkspaceID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, workspaceID string) (*WorkspaceToken, error) {
	s.mu.RLock()
	t, ok := s.tokens[workspaceID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !t.Valid(time.Now()) {
		return nil, ErrExpired
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Rotate(_ context.Context, workspaceID, newToken string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[workspaceID]
	if !ok {
		return ErrNotFound
	}
	t.Previous = t.Token
	t.Token = newToken
	t.RotatedAt = now
	t.ExpiresAt = now.Add(DefaultTTL)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, workspaceID string) error {
	s.mu.Lock()
	delete(s.tokens, workspaceID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
