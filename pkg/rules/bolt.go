package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var rulesBucket = []byte("rules")

// BoltStore persists rules in a local bbolt database. Rules are grouped in
// one nested bucket per workspace.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening rules database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rulesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating rules bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// NewBoltStoreWithDB shares an existing bbolt handle, so tokens and rules
// can live in one data file. Close is then a no-op for the handle.
func NewBoltStoreWithDB(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rulesBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating rules bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Save(_ context.Context, r *Rule) error {
	stamp(r, time.Now())
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding rule: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		ws, err := tx.Bucket(rulesBucket).CreateBucketIfNotExists([]byte(r.WorkspaceID))
		if err != nil {
			return err
		}
		return ws.Put([]byte(r.ID), data)
	})
}

func (s *BoltStore) Get(_ context.Context, workspaceID, id string) (*Rule, error) {
	var r Rule
	err := s.db.View(func(tx *bolt.Tx) error {
		ws := tx.Bucket(rulesBucket).Bucket([]byte(workspaceID))
		if ws == nil {
			return ErrNotFound
		}
		data := ws.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) List(_ context.Context, workspaceID string) ([]*Rule, error) {
	var out []*Rule
	err := s.db.View(func(tx *bolt.Tx) error {
		ws := tx.Bucket(rulesBucket).Bucket([]byte(workspaceID))
		if ws == nil {
			return nil
		}
		return ws.ForEach(func(_, data []byte) error {
			var r Rule
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("decoding rule: %w", err)
			}
			out = append(out, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortByPriority(out)
	return out, nil
}

func (s *BoltStore) Delete(_ context.Context, workspaceID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ws := tx.Bucket(rulesBucket).Bucket([]byte(workspaceID))
		if ws == nil || ws.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return ws.Delete([]byte(id))
	})
}

func (s *BoltStore) DeleteAll(_ context.Context, workspaceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rulesBucket)
		if root.Bucket([]byte(workspaceID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(workspaceID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
