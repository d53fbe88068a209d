package retrieval

import (
	"context"
	"math"
	"sort"

	"atelier/pkg/models"
	"atelier/pkg/store"
)

// Row is one ranked similarity hit, joined with its source's metadata.
type Row struct {
	SourceID   string
	ChunkIndex int
	Content    string
	Distance   float64
	Title      string
	AgentIDs   []string
	AgentID    string
	Scope      models.Scope
	ProjectKey string
}

// Index ranks stored passages by similarity to a query vector, lower
// distance first. Eligibility and scope policy live in the Resolver, not
// here.
type Index interface {
	Search(ctx context.Context, query []float64, limit int) ([]Row, error)
}

// PebbleIndex is a brute-force cosine index over the chunks in the store.
// Corpora here are small enough that a full scan beats maintaining an ANN
// structure.
type PebbleIndex struct{}

func NewPebbleIndex() *PebbleIndex { return &PebbleIndex{} }

func (ix *PebbleIndex) Search(ctx context.Context, query []float64, limit int) ([]Row, error) {
	chunks, err := store.ListAllChunks()
	if err != nil {
		return nil, err
	}
	sources, err := store.ListSources()
	if err != nil {
		return nil, err
	}
	meta := make(map[string]models.Source, len(sources))
	for _, s := range sources {
		meta[s.ID] = s
	}

	rows := make([]Row, 0, len(chunks))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, ok := meta[c.SourceID]
		if !ok || len(c.Embedding) == 0 {
			continue
		}
		rows = append(rows, Row{
			SourceID:   c.SourceID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Distance:   cosineDistance(query, c.Embedding),
			Title:      src.Title,
			AgentIDs:   src.AgentIDs,
			AgentID:    src.AgentID,
			Scope:      src.Scope,
			ProjectKey: src.ProjectKey,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Distance < rows[j].Distance })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// cosineDistance is 1 - cosine similarity; mismatched or zero vectors rank
// last.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
