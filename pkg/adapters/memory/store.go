package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/preflight/pkg/domain"
)

// Store implements ports.ArtifactStore in memory.
// Artifacts are kept as encoded JSON so that loads never alias the saved value.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory artifact store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save encodes v and keeps it under name.
func (s *Store) Save(ctx context.Context, name string, v any) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = data
	return nil
}

// Load decodes the artifact stored under name into v.
func (s *Store) Load(ctx context.Context, name string, v any) error {
	s.mu.RLock()
	data, ok := s.data[name]
	s.mu.RUnlock()

	if !ok {
		return domain.ErrArtifactNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal artifact %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name has been saved.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[name]
	return ok, nil
}

// Location returns a pseudo address for the artifact.
func (s *Store) Location(name string) string {
	return "memory://" + name
}

// Names returns the stored artifact names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for k := range s.data {
		names = append(names, k)
	}
	return names
}
