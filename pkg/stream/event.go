package stream

import (
	"encoding/json"

	"atelier/pkg/models"
)

// Event types multiplexed onto one turn stream.
const (
	EventMessage        = "message"
	EventToken          = "token"
	EventSources        = "sources"
	EventImageGenerated = "image_generated"
	EventImageUpdated   = "image_updated"
	EventPDFSaved       = "pdf_saved"
	EventDocxSaved      = "docx_saved"
	EventError          = "error"
	EventDone           = "done"
)

// Event is one decoded frame. Data is the reassembled content with
// multi-line payloads joined by newlines.
type Event struct {
	Type string
	Data string
}

// SourcesPayload is the body of a sources event, one entry per distinct
// source referenced by the turn.
type SourcesPayload struct {
	Sources []models.Citation `json:"sources"`
}

// ImagePayload is the body of image_generated and image_updated events.
// Error and URL are mutually exclusive.
type ImagePayload struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ExportPayload is the body of pdf_saved and docx_saved events.
// Error and DownloadURL are mutually exclusive.
type ExportPayload struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Token builds a token event carrying a raw text fragment.
func Token(text string) Event { return Event{Type: EventToken, Data: text} }

// Done builds the terminal marker event.
func Done() Event { return Event{Type: EventDone, Data: ""} }

// Error builds an advisory error event.
func Error(msg string) Event {
	b, _ := json.Marshal(ErrorPayload{Message: msg})
	return Event{Type: EventError, Data: string(b)}
}

// Sources builds the at-most-once citations event for a turn.
func Sources(cites []models.Citation) Event {
	if cites == nil {
		cites = []models.Citation{}
	}
	b, _ := json.Marshal(SourcesPayload{Sources: cites})
	return Event{Type: EventSources, Data: string(b)}
}

// JSONEvent marshals v as the body of a typed event.
func JSONEvent(typ string, v any) Event {
	b, _ := json.Marshal(v)
	return Event{Type: typ, Data: string(b)}
}
