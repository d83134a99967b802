// Package storage provides the key/value abstraction backing session state.
package storage

import "errors"

// ErrNotFound is returned when a bucket or key has no value.
var ErrNotFound = errors.New("record not found")

// Repository is a bucketed key/value store. The session package layers two
// repositories with different lifetimes on top of it: a durable one that
// survives process restarts and a process-scoped one that does not.
type Repository interface {
	Put(bucket, key string, value []byte) error
	Get(bucket, key string) ([]byte, error)
	Delete(bucket, key string) error
	List(bucket string) ([]string, error)
}
