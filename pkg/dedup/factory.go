package dedup

import (
	"time"

	"github.com/clockify/addon-sdk-go/pkg/metrics"
)

// OpenCache selects a store backend by name and wraps it in a Cache.
// "postgres" shares the idempotency window across replicas; any other
// backend name falls back to the in-memory store, which is per process.
func OpenCache(backend, dsn string, ttl time.Duration) (*Cache, error) {
	switch backend {
	case "postgres":
		store, err := NewPostgresStore(dsn)
		if err != nil {
			return nil, err
		}
		metrics.DedupBackend.WithLabelValues("postgres").Set(1)
		return NewCache(store, ttl), nil
	default:
		metrics.DedupBackend.WithLabelValues("memory").Set(1)
		return NewCache(NewMemoryStore(), ttl), nil
	}
}
