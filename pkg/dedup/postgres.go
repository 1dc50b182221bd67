package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/clockify/addon-sdk-go/pkg/log"
)

const dedupSchema = `
CREATE TABLE IF NOT EXISTS webhook_deliveries (
	delivery_key TEXT PRIMARY KEY,
	expires_at   TIMESTAMPTZ NOT NULL
)`

const cleanupInterval = 5 * time.Minute

// PostgresStore records delivery keys in PostgreSQL so replicas behind a
// load balancer share one idempotency window. Expired rows are reclaimed
// by a background cleanup loop.
type PostgresStore struct {
	db      *sql.DB
	ownedDB bool
	done    chan struct{}
	once    sync.Once
}

// NewPostgresStore connects using a lib/pq DSN, creates the schema and
// starts the cleanup loop.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s, err := newPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownedDB = true
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing pool. Close stops the cleanup
// loop but leaves the pool open.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	return newPostgresStore(db)
}

func newPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(dedupSchema); err != nil {
		return nil, fmt.Errorf("creating dedup schema: %w", err)
	}
	s := &PostgresStore{db: db, done: make(chan struct{})}
	go s.cleanup()
	return s, nil
}

func (s *PostgresStore) PutIfAbsent(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (delivery_key, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (delivery_key) DO NOTHING`, key, expiresAt)
	if err != nil {
		return false, fmt.Errorf("recording delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording delivery: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// The key exists; claim it only if the previous entry expired.
	res, err = s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET expires_at = $2
		WHERE delivery_key = $1 AND expires_at <= now()`, key, expiresAt)
	if err != nil {
		return false, fmt.Errorf("reclaiming delivery: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaiming delivery: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.db.Exec(`DELETE FROM webhook_deliveries WHERE expires_at <= now()`); err != nil {
				logger := log.WithComponent("dedup")
				logger.Warn().Err(err).Msg("delivery cleanup failed")
			}
		}
	}
}

func (s *PostgresStore) Close() error {
	s.once.Do(func() { close(s.done) })
	if s.ownedDB {
		return s.db.Close()
	}
	return nil
}
