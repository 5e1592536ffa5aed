package cache

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces snapshot entries inside the Badger keyspace.
const keyPrefix = "h:"

// Store persists cache entries with Badger so an engine restart can keep
// classifying unchanged files as hits.
type Store struct {
	db *badger.DB
}

// OpenStore opens or creates a snapshot store at the given directory.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(id Identity) []byte {
	return []byte(keyPrefix + string(id))
}

// Get retrieves the persisted entry for id.
func (s *Store) Get(id Identity) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes the persisted entry for id. Missing entries are not an error.
func (s *Store) Delete(id Identity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(id))
	})
}

// Load returns every persisted entry.
func (s *Store) Load() ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(e.Decode); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Replace swaps the persisted snapshot for entries in one pass.
func (s *Store) Replace(entries []Entry) error {
	if err := s.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range entries {
		value, err := entries[i].Encode()
		if err != nil {
			return err
		}
		if err := wb.Set(entryKey(entries[i].Identity), value); err != nil {
			return err
		}
	}

	return wb.Flush()
}
