package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const tokenSchema = `
CREATE TABLE IF NOT EXISTS workspace_tokens (
	workspace_id TEXT PRIMARY KEY,
	token        TEXT NOT NULL,
	previous     TEXT NOT NULL DEFAULT '',
	api_base_url TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	rotated_at   TIMESTAMPTZ
)`

// PostgresStore persists workspace tokens in PostgreSQL, for deployments
// running more than one addon replica behind a load balancer.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects using a lib/pq DSN and creates the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := db.Exec(tokenSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection pool, so several
// stores can share one pool. Close is then a no-op for the pool.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(tokenSchema); err != nil {
		return nil, fmt.Errorf("creating token schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, t *WorkspaceToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_tokens (workspace_id, token, previous, api_base_url, created_at, expires_at, rotated_at)
		VALUES ($1, $2, '', $3, $4, $5, NULL)
		ON CONFLICT (workspace_id) DO UPDATE SET
			token = EXCLUDED.token,
			previous = '',
			api_base_url = EXCLUDED.api_base_url,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			rotated_at = NULL`,
		t.WorkspaceID, t.Token, t.APIBaseURL, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, workspaceID string) (*WorkspaceToken, error) {
	var t WorkspaceToken
	var rotated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, token, previous, api_base_url, created_at, expires_at, rotated_at
		FROM workspace_tokens WHERE workspace_id = $1`, workspaceID).
		Scan(&t.WorkspaceID, &t.Token, &t.Previous, &t.APIBaseURL, &t.CreatedAt, &t.ExpiresAt, &rotated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if rotated.Valid {
		t.RotatedAt = rotated.Time
	}
	if !t.Valid(time.Now()) {
		return nil, ErrExpired
	}
	return &t, nil
}

func (s *PostgresStore) Rotate(ctx context.Context, workspaceID, newToken string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workspace_tokens SET
			previous = token,
			token = $2,
			rotated_at = $3,
			expires_at = $4
		WHERE workspace_id = $1`,
		workspaceID, newToken, now, now.Add(DefaultTTL))
	if err != nil {
		return fmt.Errorf("rotating token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotating token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workspace_tokens WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
