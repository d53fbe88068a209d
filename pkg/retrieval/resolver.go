// Package retrieval selects and ranks the stored passages eligible as
// context for a turn. The similarity ranking itself is delegated to an
// Index; this package owns chunking, eligibility, scope policy, and the
// hybrid rank bias.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"atelier/pkg/logger"
	"atelier/pkg/models"
)

// ScopeMode selects which knowledge partitions a turn may draw from.
type ScopeMode string

const (
	ModeGeneric ScopeMode = "generic"
	ModeProject ScopeMode = "project"
	ModeHybrid  ScopeMode = "hybrid"
)

const (
	// DefaultTopK and MaxTopK bound the candidate count per turn.
	DefaultTopK = 6
	MaxTopK     = 20

	// DefaultProjectBias is subtracted from project-scoped distances in
	// hybrid mode so equally-similar project content outranks generic.
	DefaultProjectBias = 0.02

	// overscan keeps enough index rows around that post-filter
	// truncation still fills TopK.
	overscan = 4
)

// Request describes one retrieval round-trip.
type Request struct {
	AgentID    string
	Query      string
	Mode       ScopeMode
	ProjectKey string
	TopK       int
}

// Candidate is an eligible, ranked passage. Ephemeral; never persisted.
type Candidate struct {
	SourceID   string
	ChunkIndex int
	Content    string
	Distance   float64
	Title      string
	Scope      models.Scope
	ProjectKey string
}

type Resolver struct {
	emb  Embedder
	idx  Index
	bias float64
}

func NewResolver(emb Embedder, idx Index, bias float64) *Resolver {
	if bias <= 0 {
		bias = DefaultProjectBias
	}
	return &Resolver{emb: emb, idx: idx, bias: bias}
}

// Resolve returns ranked candidates for the request. A nil resolver (no
// embedder configured) and index or embedder outages all degrade to an
// empty list so the turn proceeds without context.
func (r *Resolver) Resolve(ctx context.Context, req Request) []Candidate {
	if r == nil {
		return nil
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	// project scope with no selected project can never match anything
	if mode == ModeProject && req.ProjectKey == "" {
		return nil
	}

	query, err := r.emb.Embed(ctx, req.Query)
	if err != nil {
		logger.Warn("retrieval_embed_failed", "agent", req.AgentID, "err", err)
		return nil
	}
	rows, err := r.idx.Search(ctx, query, topK*overscan)
	if err != nil {
		logger.Warn("retrieval_index_unavailable", "agent", req.AgentID, "err", err)
		return nil
	}

	var out []Candidate
	for _, row := range rows {
		if !visible(row, req.AgentID) {
			continue
		}
		dist, ok := r.scoped(row, mode, req.ProjectKey)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			SourceID:   row.SourceID,
			ChunkIndex: row.ChunkIndex,
			Content:    row.Content,
			Distance:   dist,
			Title:      row.Title,
			Scope:      row.Scope,
			ProjectKey: row.ProjectKey,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func visible(row Row, agentID string) bool {
	for _, id := range row.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return row.AgentID != "" && row.AgentID == agentID
}

// scoped applies the mode filter and returns the effective distance.
func (r *Resolver) scoped(row Row, mode ScopeMode, projectKey string) (float64, bool) {
	switch mode {
	case ModeGeneric:
		return row.Distance, row.Scope == models.ScopeGeneric
	case ModeProject:
		return row.Distance, row.Scope == models.ScopeProject && strings.EqualFold(row.ProjectKey, projectKey)
	case ModeHybrid:
		if row.Scope == models.ScopeGeneric {
			return row.Distance, true
		}
		// no active project surfaces all project content
		if projectKey == "" || strings.EqualFold(row.ProjectKey, projectKey) {
			return row.Distance - r.bias, true
		}
	}
	return 0, false
}

// Citations groups candidates into one citation per distinct source, in
// first-appearance (rank) order.
func Citations(cands []Candidate) []models.Citation {
	var out []models.Citation
	pos := map[string]int{}
	for _, c := range cands {
		i, ok := pos[c.SourceID]
		if !ok {
			pos[c.SourceID] = len(out)
			out = append(out, models.Citation{SourceID: c.SourceID, Title: c.Title})
			i = len(out) - 1
		}
		out[i].ChunkIndices = append(out[i].ChunkIndices, c.ChunkIndex)
		out[i].Scores = append(out[i].Scores, c.Distance)
	}
	return out
}
