package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"duration"`
}

// Checker is a named readiness probe for one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

const checkTimeout = 5 * time.Second

// Registry runs registered checkers and serves liveness and readiness
// endpoints. Liveness only proves the process responds; readiness fans out
// to every dependency.
type Registry struct {
	mu       sync.RWMutex
	checkers []Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker to the readiness probe.
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, c)
	r.mu.Unlock()
}

// LivenessHandler always reports ok while the process can serve requests.
func (r *Registry) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

// ReadinessHandler runs all checks; any failure yields 503 with per-check
// detail.
func (r *Registry) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
		defer cancel()

		r.mu.RLock()
		checkers := make([]Checker, len(r.checkers))
		copy(checkers, r.checkers)
		r.mu.RUnlock()

		results := make(map[string]Result, len(checkers))
		healthy := true
		for _, c := range checkers {
			res := c.Check(ctx)
			results[c.Name()] = res
			healthy = healthy && res.Healthy
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"healthy": healthy,
			"checks":  results,
		})
	})
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string { return c.CheckName }

func (c CheckFunc) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.Fn(ctx)
	res := Result{
		Healthy:   err == nil,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// DBChecker probes a SQL database with a ping.
func DBChecker(name string, db *sql.DB) Checker {
	return CheckFunc{
		CheckName: name,
		Fn:        db.PingContext,
	}
}
