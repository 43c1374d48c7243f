package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ensemblehq/conductor/service/repository"
)

// Service is an in-memory repository, the default for tests and embedded
// use.
type Service struct {
	mu      sync.RWMutex
	records map[string][]byte
}

var _ repository.Service = (*Service)(nil)

// New creates an empty in-memory repository.
func New() *Service {
	return &Service{records: map[string][]byte{}}
}

func (s *Service) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = append([]byte(nil), value...)
	return nil
}

func (s *Service) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.records[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Service) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *Service) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
