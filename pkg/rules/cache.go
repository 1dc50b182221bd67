package rules

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale the enabled-rules view may get after an
// edit through the management API on another replica.
const DefaultCacheTTL = 30 * time.Second

// CachedStore layers a per-workspace read cache over a Store. Webhook
// bursts for one workspace then hit storage once per TTL instead of once
// per delivery. Writes through this store invalidate the workspace entry.
type CachedStore struct {
	Store
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	rules   []*Rule
	expires time.Time
}

// NewCachedStore wraps a store. A non-positive TTL takes the default.
func NewCachedStore(store Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		Store:   store,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *CachedStore) List(ctx context.Context, workspaceID string) ([]*Rule, error) {
	c.mu.Lock()
	entry, ok := c.entries[workspaceID]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return copyRules(entry.rules), nil
	}

	rules, err := c.Store.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[workspaceID] = cacheEntry{rules: rules, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return copyRules(rules), nil
}

// copyRules duplicates the slice header so callers sorting or trimming the
// result cannot disturb the cached view other callers share.
func copyRules(rules []*Rule) []*Rule {
	return append([]*Rule(nil), rules...)
}

func (c *CachedStore) Save(ctx context.Context, r *Rule) error {
	if err := c.Store.Save(ctx, r); err != nil {
		return err
	}
	c.invalidate(r.WorkspaceID)
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, workspaceID, id string) error {
	if err := c.Store.Delete(ctx, workspaceID, id); err != nil {
		return err
	}
	c.invalidate(workspaceID)
	return nil
}

func (c *CachedStore) DeleteAll(ctx context.Context, workspaceID string) error {
	if err := c.Store.DeleteAll(ctx, workspaceID); err != nil {
		return err
	}
	c.invalidate(workspaceID)
	return nil
}

func (c *CachedStore) invalidate(workspaceID string) {
	c.mu.Lock()
	delete(c.entries, workspaceID)
	c.mu.Unlock()
}
