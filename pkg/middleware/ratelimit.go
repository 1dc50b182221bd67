package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleEviction = 10 * time.Minute

// RateLimiter throttles requests per client key (remote IP by default).
// Idle limiters are evicted so the map does not grow with one entry per
// address ever seen.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn func(*http.Request) string

	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterOption customizes a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithKeyFunc replaces the per-client key derivation, e.g. to throttle per
// workspace instead of per address.
func WithKeyFunc(fn func(*http.Request) string) RateLimiterOption {
	return func(l *RateLimiter) { l.keyFn = fn }
}

// NewRateLimiter allows rps sustained requests per key with the given burst.
func NewRateLimiter(rps float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		keyFn:    remoteIP,
		done:     make(chan struct{}),
		limiters: make(map[string]*limiterEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.evictIdle()
	return l
}

// Middleware returns the http middleware applying the limit.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(l.keyFn(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()
	return entry.limiter.Allow()
}

// Close stops the background eviction loop. Safe to call more than once.
func (l *RateLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *RateLimiter) evictIdle() {
	ticker := time.NewTicker(limiterIdleEviction)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.mu.Lock()
			for key, entry := range l.limiters {
				if now.Sub(entry.lastSeen) > limiterIdleEviction {
					delete(l.limiters, key)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
