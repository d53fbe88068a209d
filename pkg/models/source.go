package models

// Scope tags a source as organization-wide or project-specific.
type Scope string

const (
	ScopeGeneric Scope = "generic"
	ScopeProject Scope = "project"
)

// Source is an uploaded knowledge document, chunked and embedded at ingest.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// AgentIDs lists the agents allowed to retrieve from this source.
	AgentIDs []string `json:"agent_ids,omitempty"`
	// AgentID is the legacy single-agent form, still honored for
	// visibility checks on sources ingested before AgentIDs existed.
	AgentID    string `json:"agent_id,omitempty"`
	Scope      Scope  `json:"scope"`
	ProjectKey string `json:"project_key,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	CreatedTS  int64  `json:"created_ts,omitempty"`
}

// VisibleTo reports whether agentID may retrieve from this source.
func (s *Source) VisibleTo(agentID string) bool {
	for _, id := range s.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return s.AgentID != "" && s.AgentID == agentID
}

// Chunk is one embedded window of a source's text.
type Chunk struct {
	SourceID  string    `json:"source_id"`
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding,omitempty"`
}
