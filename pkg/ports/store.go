package ports

import (
	"context"
)

// ArtifactStore persists stage artifacts by name.
type ArtifactStore interface {
	// Save serializes v and stores it under name, replacing any previous artifact.
	// Implementations must never leave a partially written artifact behind.
	Save(ctx context.Context, name string, v any) error

	// Load decodes the artifact stored under name into v.
	// Returns domain.ErrArtifactNotFound if it does not exist.
	Load(ctx context.Context, name string, v any) error

	// Exists reports whether an artifact is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Location returns a human-readable address for the artifact (a path for file stores).
	Location(name string) string
}
