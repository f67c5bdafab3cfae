package utils

import (
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// DiskStore is a small persistent key/value store backed by badger. Reads of
// keys written through this handle are served from memory.
type DiskStore struct {
	db    *badger.DB
	cache sync.Map
}

func OpenDiskStore(path string) (*DiskStore, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskStore{db: db}, nil
}

func (s *DiskStore) Close() error {
	return s.db.Close()
}

func (s *DiskStore) Put(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return err
	}
	s.cache.Store(key, append([]byte(nil), value...))
	return nil
}

// PutBatch writes all entries in a single write batch.
func (s *DiskStore) PutBatch(entries map[string][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for k, v := range entries {
		if err := wb.Set([]byte(k), v); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}
	for k := range entries {
		s.cache.Delete(k)
	}
	return nil
}

// Get returns the stored value, or nil without an error when key is absent.
func (s *DiskStore) Get(key string) ([]byte, error) {
	if v, ok := s.cache.Load(key); ok {
		return v.([]byte), nil
	}
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.cache.Store(key, val)
	return val, nil
}

func (s *DiskStore) Delete(key string) error {
	s.cache.Delete(key)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// ForEach visits every entry in key order. k and v are only valid during fn.
func (s *DiskStore) ForEach(fn func(k []byte, v []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			err := item.Value(func(v []byte) error {
				return fn(k, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
