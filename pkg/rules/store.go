package rules

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no rule exists for the given ID.
var ErrNotFound = errors.New("rules: rule not found")

// Store persists rules per workspace. Save upserts, assigning an ID and
// timestamps to new rules. DeleteAll removes every rule of a workspace and
// backs the DELETED lifecycle purge.
type Store interface {
	Save(ctx context.Context, r *Rule) error
	Get(ctx context.Context, workspaceID, id string) (*Rule, error)
	List(ctx context.Context, workspaceID string) ([]*Rule, error)
	Delete(ctx context.Context, workspaceID, id string) error
	DeleteAll(ctx context.Context, workspaceID string) error
	Close() error
}

// stamp fills in identity and timestamps on save.
func stamp(r *Rule, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.NewString()
		r.CreatedAt = now
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

// MemoryStore keeps rules in process memory, for tests and ephemeral
// deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]map[string]*Rule // workspace -> id -> rule
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]map[string]*Rule)}
}

func (s *MemoryStore) Save(_ context.Context, r *Rule) error {
	stamp(r, time.Now())
	cp := *r
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.rules[r.WorkspaceID]
	if !ok {
		ws = make(map[string]*Rule)
		s.rules[r.WorkspaceID] = ws
	}
	ws[r.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, workspaceID, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[workspaceID][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, workspaceID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws := s.rules[workspaceID]
	out := make([]*Rule, 0, len(ws))
	for _, r := range ws {
		cp := *r
		out = append(out, &cp)
	}
	SortByPriority(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, workspaceID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.rules[workspaceID]
	if _, ok := ws[id]; !ok {
		return ErrNotFound
	}
	delete(ws, id)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, workspaceID string) error {
	s.mu.Lock()
	delete(s.rules, workspaceID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
