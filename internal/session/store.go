// Package session implements the server-side session backend on BadgerDB:
// a cookie-identified record holding the session's credentials, the bound
// user and the three refresh-state blobs.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/starford/paperfeed/internal/apperr"
)

// Field names stored per session.
const (
	FieldCredentials     = "credentials"
	FieldUserID          = "user_id"
	FieldLastRefresh     = "last_refresh"
	FieldSeedPapers      = "seed_papers"
	FieldRecommendations = "recommendations"
)

const keyPrefix = "session:"

var allFields = []string{FieldCredentials, FieldUserID, FieldLastRefresh, FieldSeedPapers, FieldRecommendations}

// Store keeps session fields in BadgerDB. Every write refreshes the TTL of
// the written keys.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens a Badger database at path, or an in-memory one when inMemory is set.
func Open(path string, inMemory bool, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("session: open badger: %w", err)
	}
	return NewStore(db, ttl), nil
}

// NewStore wraps an open Badger database.
func NewStore(db *badger.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Store{db: db, ttl: ttl}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func fieldKey(id, field string) []byte {
	return []byte(keyPrefix + id + ":" + field)
}

// Get decodes one field into v. Missing fields yield apperr.ErrNotFound.
func (s *Store) Get(id, field string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fieldKey(id, field))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("session: %s: %w", field, apperr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("session: get %s: %w", field, err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, v); err != nil {
				return fmt.Errorf("session: decode %s: %w", field, err)
			}
			return nil
		})
	})
}

// Set stores one field.
func (s *Store) Set(id, field string, v any) error {
	return s.SetMany(id, map[string]any{field: v})
}

// SetMany stores several fields in one transaction.
func (s *Store) SetMany(id string, fields map[string]any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for field, v := range fields {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("session: encode %s: %w", field, err)
			}
			e := badger.NewEntry(fieldKey(id, field), data).WithTTL(s.ttl)
			if err := txn.SetEntry(e); err != nil {
				return fmt.Errorf("session: set %s: %w", field, err)
			}
		}
		return nil
	})
}

// Destroy removes every field of a session.
func (s *Store) Destroy(id string) error {
	return s.Delete(id, allFields...)
}

// Delete removes the given fields of a session. Missing fields are ignored.
func (s *Store) Delete(id string, fields ...string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, field := range fields {
			if err := txn.Delete(fieldKey(id, field)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("session: delete %s: %w", field, err)
			}
		}
		return nil
	})
}
