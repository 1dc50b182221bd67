package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const rulesSchema = `
CREATE TABLE IF NOT EXISTS rules (
	id           TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	document     JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (workspace_id, id)
)`

// PostgresStore persists rules as JSONB documents, one row per rule.
type PostgresStore struct {
	db      *sql.DB
	ownedDB bool
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
	if _, err := db.Exec(rulesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating rules schema: %w", err)
	}
	return &PostgresStore{db: db, ownedDB: true}, nil
}

// NewPostgresStoreWithDB wraps an existing pool.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(rulesSchema); err != nil {
		return nil, fmt.Errorf("creating rules schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, r *Rule) error {
	stamp(r, time.Now())
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding rule: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, workspace_id, document, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.WorkspaceID, doc, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, workspaceID, id string) (*Rule, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM rules WHERE workspace_id = $1 AND id = $2`,
		workspaceID, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading rule: %w", err)
	}
	var r Rule
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decoding rule: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) List(ctx context.Context, workspaceID string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM rules WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		var r Rule
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("decoding rule: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	SortByPriority(out)
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, workspaceID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rules WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rules WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return fmt.Errorf("purging rules: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.ownedDB {
		return s.db.Close()
	}
	return nil
}
