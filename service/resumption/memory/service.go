package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ensemblehq/conductor/internal/idgen"
	"github.com/ensemblehq/conductor/runtime/execution"
	"github.com/ensemblehq/conductor/service/resumption"
)

// Service keeps suspended-execution snapshots in memory.
type Service struct {
	mu        sync.Mutex
	snapshots map[string]*execution.Suspended
}

var _ resumption.Service = (*Service)(nil)

// New creates an empty in-memory resumption service.
func New() *Service {
	return &Service{snapshots: map[string]*execution.Suspended{}}
}

// Suspend stores the snapshot and issues a one-time token.
func (s *Service) Suspend(_ context.Context, snapshot *execution.Suspended) (string, error) {
	token := idgen.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[token] = snapshot
	return token, nil
}

// Consume claims the snapshot for token, removing it so a second claim
// fails.
func (s *Service) Consume(_ context.Context, token string) (*execution.Suspended, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.snapshots[token]
	if !ok {
		return nil, resumption.ErrTokenNotFound
	}
	delete(s.snapshots, token)
	return snapshot, nil
}

// Discard drops a parked snapshot without resuming it.
func (s *Service) Discard(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[token]; !ok {
		return resumption.ErrTokenNotFound
	}
	delete(s.snapshots, token)
	return nil
}

// Pending lists outstanding tokens.
func (s *Service) Pending(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]string, 0, len(s.snapshots))
	for token := range s.snapshots {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens, nil
}
