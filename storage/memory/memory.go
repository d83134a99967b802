// Package memory provides a thread-safe in-memory implementation of
// storage.Repository. It backs the process-scoped session tier and tests.
package memory

import (
	"sync"

	"github.com/jmcleod/latchkey/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string][]byte)}
}

func (r *Repository) Put(bucket, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[bucket]; !ok {
		r.data[bucket] = make(map[string][]byte)
	}
	r.data[bucket][key] = append([]byte(nil), value...)
	return nil
}

func (r *Repository) Get(bucket, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.data[bucket]
	if !ok {
		return nil, storage.ErrNotFound
	}
	v, ok := b[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (r *Repository) Delete(bucket, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.data[bucket]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := b[key]; !ok {
		return storage.ErrNotFound
	}
	delete(b, key)
	return nil
}

func (r *Repository) List(bucket string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for k := range r.data[bucket] {
		keys = append(keys, k)
	}
	return keys, nil
}
