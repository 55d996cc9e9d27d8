package ports

import (
	"context"

	"github.com/aretw0/preflight/pkg/domain"
)

// EvidenceRetriever looks up evidence passages relevant to a query within the selected packs.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query string, packs []domain.FileRef, limit int) ([]domain.Evidence, error)
}
