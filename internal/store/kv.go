package store

import (
	"database/sql"
	"errors"
	"time"
)

// KVStore is a durable key/value store for small documents.
type KVStore struct {
	db *sql.DB
}

// NewKVStore creates a new key/value store.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db.Conn()}
}

// Get returns the value of key, or nil if it is not set.
func (s *KVStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *KVStore) Set(key string, value []byte) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query, key, value, time.Now().Unix())
	return err
}

// Remove deletes key. Removing a missing key is not an error.
func (s *KVStore) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// UpdatedAt returns when key was last set, zero if it is not set.
func (s *KVStore) UpdatedAt(key string) (time.Time, error) {
	var updatedAt int64
	err := s.db.QueryRow(`SELECT updated_at FROM kv WHERE key = ?`, key).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Unix(updatedAt, 0), nil
}
