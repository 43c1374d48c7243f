package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/ensemblehq/conductor/internal/idgen"
	"github.com/ensemblehq/conductor/runtime/execution"
	"github.com/ensemblehq/conductor/service/resumption"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Service persists suspended-execution snapshots as JSON files, surviving
// process restarts. The mutex keeps claim-then-delete atomic within one
// process; multi-process deployments should use a shared store instead.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.Mutex
}

var _ resumption.Service = (*Service)(nil)

// New creates a resumption service rooted at baseURL.
func New(baseURL string) *Service {
	return &Service{baseURL: baseURL, fs: afs.New()}
}

// Suspend stores the snapshot and issues a one-time token.
func (s *Service) Suspend(ctx context.Context, snapshot *execution.Suspended) (string, error) {
	token := idgen.New()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to marshal suspended execution: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.tokenURL(token)
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to store suspended execution at %s: %w", URL, err)
	}
	return token, nil
}

// Consume claims the snapshot for token: the file is removed before the
// snapshot is handed back, so a second claim fails.
func (s *Service) Consume(ctx context.Context, token string) (*execution.Suspended, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.tokenURL(token)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return nil, resumption.ErrTokenNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", URL, err)
	}
	if err := s.fs.Delete(ctx, URL); err != nil {
		return nil, fmt.Errorf("failed to claim %s: %w", URL, err)
	}
	snapshot := &execution.Suspended{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suspended execution: %w", err)
	}
	return snapshot, nil
}

// Discard drops a parked snapshot without resuming it.
func (s *Service) Discard(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.tokenURL(token)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return resumption.ErrTokenNotFound
	}
	return s.fs.Delete(ctx, URL)
}

// Pending lists outstanding tokens.
func (s *Service) Pending(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.baseURL, err)
	}
	var tokens []string
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		tokens = append(tokens, strings.TrimSuffix(object.Name(), path.Ext(object.Name())))
	}
	return tokens, nil
}

func (s *Service) tokenURL(token string) string {
	return url.Join(s.baseURL, token+".json")
}
