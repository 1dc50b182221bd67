package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var tokenBucket = []byte("workspace_tokens")

// BoltStore persists workspace tokens in a local bbolt database. Tokens
// survive process restarts, which matters because Clockify only delivers
// the auth token on the INSTALLED lifecycle callback.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file and ensures the
// token bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening token database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tokenBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Save(_ context.Context, t *WorkspaceToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokenBucket).Put([]byte(t.WorkspaceID), data)
	})
}

func (s *BoltStore) Get(_ context.Context, workspaceID string) (*WorkspaceToken, error) {
	var t WorkspaceToken
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(tokenBucket).Get([]byte(workspaceID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return nil, err
	}
	if !t.Valid(time.Now()) {
		return nil, ErrExpired
	}
	return &t, nil
}

func (s *BoltStore) Rotate(_ context.Context, workspaceID, newToken string, now time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tokenBucket)
		data := b.Get([]byte(workspaceID))
		if data == nil {
			return ErrNotFound
		}
		var t WorkspaceToken
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decoding token: %w", err)
		}
		t.Previous = t.Token
		t.Token = newToken
		t.RotatedAt = now
		t.ExpiresAt = now.Add(DefaultTTL)
		updated, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("encoding token: %w", err)
		}
		return b.Put([]byte(workspaceID), updated)
	})
}

func (s *BoltStore) Delete(_ context.Context, workspaceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokenBucket).Delete([]byte(workspaceID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
