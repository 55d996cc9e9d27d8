package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aretw0/preflight/internal/atomicfile"
	"github.com/aretw0/preflight/pkg/domain"
)

// Store implements ports.ArtifactStore using the local filesystem.
// Each artifact is an indented JSON file named <name>.json in BasePath.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to "build".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = "build"
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.BasePath, name+".json")
}

// Save writes the artifact atomically. Non-ASCII text is kept as is.
func (s *Store) Save(ctx context.Context, name string, v any) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", name, err)
	}

	if err := atomicfile.Write(s.path(name), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return nil
}

// Load decodes the artifact file into v.
func (s *Store) Load(ctx context.Context, name string, v any) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrArtifactNotFound
		}
		return fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal artifact %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the artifact file exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat artifact %s: %w", name, err)
}

// Location returns the artifact's file path.
func (s *Store) Location(name string) string {
	return s.path(name)
}
