package registry

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/buntdb"
)

// Store persists trigger times keyed by user identifier.
type Store interface {
	Put(userID int64, triggerTime string) error
	Delete(userID int64) error
	All() (map[int64]string, error)
	Close() error
}

// BuntStore implements Store on top of a single-file BuntDB database.
type BuntStore struct {
	db *buntdb.DB
}

// FromMemory creates an in-memory store, used by tests.
func FromMemory() (*BuntStore, error) {
	return NewBuntStore(":memory:")
}

// FromFile creates a file-backed store.
func FromFile(file string) (*BuntStore, error) {
	return NewBuntStore(file)
}

// NewBuntStore opens the registry database at the given source.
func NewBuntStore(sourceFile string) (*BuntStore, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	return &BuntStore{db: db}, nil
}

// Put writes a trigger time through to disk before returning.
func (s *BuntStore) Put(userID int64, triggerTime string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(strconv.FormatInt(userID, 10), triggerTime, nil)
		return err
	})
}

// Delete removes a user entry. Deleting an absent user is a no-op.
func (s *BuntStore) Delete(userID int64) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(strconv.FormatInt(userID, 10))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

// All reads every stored entry. Keys that are not numeric user
// identifiers are skipped.
func (s *BuntStore) All() (map[int64]string, error) {
	entries := make(map[int64]string)

	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return true
			}
			entries[id] = value
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read registry entries: %w", err)
	}

	return entries, nil
}

// Close closes the underlying database.
func (s *BuntStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
