package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("repository: not found")

// Service is a flat key/value document store used by the storage agent and
// the persistence layers.
type Service interface {
	Put(ctx context.Context, key string, value []byte) error

	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) error

	List(ctx context.Context, prefix string) ([]string, error)
}
