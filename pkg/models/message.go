package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Citations is the ordered list of sources referenced by this turn,
	// one entry per distinct source.
	Citations []Citation `json:"citations,omitempty"`
	// Attachments holds side-effect results produced during this turn.
	Attachments []SideEffectResult `json:"attachments,omitempty"`
	TS          int64              `json:"ts,omitempty"`
}

// Citation references a stored passage that contributed to a response.
// ChunkIndices and Scores are parallel, ordered by retrieval rank.
type Citation struct {
	SourceID     string    `json:"source_id"`
	Title        string    `json:"title,omitempty"`
	ChunkIndices []int     `json:"chunks"`
	Scores       []float64 `json:"scores,omitempty"`
}
