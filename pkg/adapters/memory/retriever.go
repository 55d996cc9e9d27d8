package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/aretw0/preflight/pkg/domain"
)

// Retriever implements ports.EvidenceRetriever over a fixed set of passages.
// A passage scores one point per query term it contains; passages from packs
// that are not selected are ignored.
type Retriever struct {
	Passages []domain.Evidence
}

// NewRetriever creates a retriever over the given passages.
func NewRetriever(passages ...domain.Evidence) *Retriever {
	return &Retriever{Passages: passages}
}

// Retrieve returns up to limit passages ordered by descending score.
func (r *Retriever) Retrieve(ctx context.Context, query string, packs []domain.FileRef, limit int) ([]domain.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(packs))
	for _, p := range packs {
		allowed[p.Name] = true
	}
	terms := strings.Fields(query)

	var out []domain.Evidence
	for _, p := range r.Passages {
		if len(allowed) > 0 && !allowed[p.Source] {
			continue
		}
		score := 0
		for _, term := range terms {
			if strings.Contains(p.Text, term) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		ev := p
		ev.Score = float64(score)
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
