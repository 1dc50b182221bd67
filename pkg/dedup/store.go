package dedup

import (
	"context"
	"sync"
	"time"
)

// Store records delivery keys for a bounded retention window.
//
// PutIfAbsent returns true when the key was not yet present (first
// delivery) and false when a live entry already exists. An expired entry
// counts as absent and is replaced.
type Store interface {
	PutIfAbsent(ctx context.Context, key string, expiresAt time.Time) (bool, error)
	Close() error
}

const sweepInterval = time.Minute

// MemoryStore keeps delivery keys in process memory with a background
// sweeper evicting expired entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates the store and starts its sweeper.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, expiresAt time.Time) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.entries[key] = expiresAt
	return true, nil
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, exp := range s.entries {
				if now.After(exp) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Len reports the number of live entries, for tests and diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
