package store

import (
	"context"
	"sync"

	"github.com/ensemblehq/conductor/service/dao"
)

// MatcherFunc reports whether an entity satisfies one list parameter.
type MatcherFunc[T any] func(*T, *dao.Parameter) bool

// MemoryStore is a generic in-memory implementation of dao.Service.
// It keeps entities of type *T mapped by a comparable key K obtained from
// the supplied keySelector, letting concrete DAOs embed the store instead
// of rewriting identical Save/Load/Delete/List logic per entity type.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	matcher     MatcherFunc[T]
}

// NewMemoryStore creates a new MemoryStore.
// keySelector extracts the entity key (usually the ID field) from a value.
// An optional matcher enables parameter filtering in List; without one,
// parameters are ignored.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K, matcher ...MatcherFunc[T]) *MemoryStore[K, T] {
	s := &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
	}
	if len(matcher) > 0 {
		s.matcher = matcher[0]
	}
	return s
}

// Save stores or overwrites a record.
func (s *MemoryStore[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = v
	return nil
}

// Load returns a record by key, dao.ErrNotFound when absent.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return v, nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// List returns stored records matching every supplied parameter.
func (s *MemoryStore[K, T]) List(_ context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		if s.matches(v, parameters) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *MemoryStore[K, T]) matches(v *T, parameters []*dao.Parameter) bool {
	if s.matcher == nil {
		return true
	}
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		if !s.matcher(v, parameter) {
			return false
		}
	}
	return true
}
