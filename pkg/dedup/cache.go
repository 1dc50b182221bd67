package dedup

import (
	"context"
	"time"

	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
	"github.com/clockify/addon-sdk-go/pkg/payload"
)

// Retention bounds. Clockify retries deliveries for a few minutes, so a
// window shorter than MinTTL would let retries through and one longer than
// MaxTTL only wastes storage.
const (
	DefaultTTL = 10 * time.Minute
	MinTTL     = time.Minute
	MaxTTL     = 24 * time.Hour
)

// ClampTTL forces the retention window into [MinTTL, MaxTTL]; zero or
// negative values take the default.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultTTL
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	default:
		return ttl
	}
}

// Cache is the idempotency guard in front of webhook handlers. It fails
// open: when the store errors the delivery is treated as first-seen, since
// processing a duplicate is cheaper than dropping a real event.
type Cache struct {
	store Store
	ttl   time.Duration
}

// NewCache wraps a store with a clamped retention window.
func NewCache(store Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ClampTTL(ttl)}
}

// TTL reports the effective retention window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// FirstDelivery reports whether this delivery has not been seen inside the
// retention window, deriving the key from the payload identifiers.
func (c *Cache) FirstDelivery(ctx context.Context, workspaceID, event string, p payload.Payload, rawBody []byte) bool {
	key := Key(workspaceID, event, p, rawBody)
	first, err := c.store.PutIfAbsent(ctx, key, time.Now().Add(c.ttl))
	if err != nil {
		metrics.DedupErrorsTotal.Inc()
		logger := log.WithComponent("dedup")
		logger.Warn().
			Err(err).
			Str("event", event).
			Msg("dedup store failed, processing delivery anyway")
		return true
	}
	if first {
		metrics.DedupMissesTotal.Inc()
	} else {
		metrics.DedupHitsTotal.Inc()
	}
	return first
}

// Close releases the underlying store.
func (c *Cache) Close() error { return c.store.Close() }
