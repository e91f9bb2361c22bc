package dao

import (
	"bytes"
	"errors"

	"github.com/nspcc-dev/ledgerpool/pkg/core/storage"
)

// Cached is a data access object with a write cache, all changes are kept
// in memory and written to the backing store by Persist.
type Cached struct {
	*Simple
	changes map[string][]byte
}

// NewCached returns new Cached wrapping around given dao.
func NewCached(d *Simple) *Cached {
	return &Cached{Simple: d, changes: make(map[string][]byte)}
}

// Get returns the value from the cache or the backing store.
func (cd *Cached) Get(key []byte) ([]byte, error) {
	if v, ok := cd.changes[string(key)]; ok {
		if v == nil {
			return nil, storage.ErrKeyNotFound
		}
		return v, nil
	}
	return cd.Store.Get(key)
}

// Put caches the key-value pair.
func (cd *Cached) Put(key, value []byte) {
	cd.changes[string(key)] = bytes.Clone(value)
}

// Delete caches the key deletion.
func (cd *Cached) Delete(key []byte) {
	cd.changes[string(key)] = nil
}

// Has returns true if the key exists in the cache or the backing store.
func (cd *Cached) Has(key []byte) bool {
	_, err := cd.Get(key)
	return err == nil
}

// Persist flushes all the changes made into the backing store and returns
// the number of changed keys.
func (cd *Cached) Persist() (int, error) {
	n := len(cd.changes)
	if n == 0 {
		return 0, nil
	}
	if err := cd.Store.PutChangeSet(cd.changes); err != nil {
		return 0, err
	}
	cd.changes = make(map[string][]byte)
	return n, nil
}

// IsNotFound returns true if the error means a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrKeyNotFound)
}
