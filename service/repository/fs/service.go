package fs

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ensemblehq/conductor/service/repository"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Service is a filesystem-backed repository built on the abstract file
// system, so the base URL may point at local disk, memory or any other
// supported scheme.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

var _ repository.Service = (*Service)(nil)

// New creates a repository rooted at baseURL.
func New(baseURL string) *Service {
	return &Service{baseURL: baseURL, fs: afs.New()}
}

func (s *Service) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.keyURL(key)
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(value)); err != nil {
		return fmt.Errorf("failed to store %s: %w", URL, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	URL := s.keyURL(key)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", URL, err)
	}
	return data, nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.keyURL(key)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return nil
	}
	return s.fs.Delete(ctx, URL)
}

func (s *Service) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.baseURL, err)
	}
	var keys []string
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		key := strings.TrimSuffix(object.Name(), path.Ext(object.Name()))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Service) keyURL(key string) string {
	return url.Join(s.baseURL, key+".json")
}
