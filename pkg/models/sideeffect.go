package models

// SideEffectKind distinguishes image generation from document export.
type SideEffectKind string

const (
	SideEffectImage    SideEffectKind = "image"
	SideEffectDocument SideEffectKind = "document"
)

// SideEffectStatus tracks a side effect's lifecycle. A result transitions
// out of pending exactly once; the orchestrator force-fails anything still
// pending when the turn ends.
type SideEffectStatus string

const (
	SideEffectPending   SideEffectStatus = "pending"
	SideEffectCompleted SideEffectStatus = "completed"
	SideEffectFailed    SideEffectStatus = "failed"
)

type SideEffectResult struct {
	Kind   SideEffectKind   `json:"kind"`
	Status SideEffectStatus `json:"status"`
	// ID correlates pending placeholders with their completion events.
	ID string `json:"id"`
	// Locator is a download reference for the produced artifact.
	Locator string `json:"locator,omitempty"`
	Error   string `json:"error,omitempty"`
}
