// Package client reassembles a turn's multiplexed event stream into local
// conversation state. It is the receiving half of pkg/stream: bytes go in,
// one in-progress assistant message accumulates tokens, citations and side
// effect results attach to that same message.
package client

import (
	"encoding/json"
	"time"

	"atelier/pkg/logger"
	"atelier/pkg/models"
	"atelier/pkg/stream"
)

// Reassembler decodes one turn's byte stream incrementally. Create one per
// turn with Begin, feed it raw fragments, read state between feeds.
type Reassembler struct {
	messages []models.Message
	carry    []byte
	done     bool
	// index of the in-progress assistant message; fixed for the turn
	active  int
	lastErr string
}

// Begin starts a turn: appends the user message and an empty assistant
// placeholder to prior history and returns a reassembler bound to it.
func Begin(history []models.Message, userText string) *Reassembler {
	now := time.Now().UnixNano()
	msgs := append(append([]models.Message{}, history...),
		models.Message{Role: models.RoleUser, Content: userText, TS: now},
		models.Message{Role: models.RoleAssistant, TS: now},
	)
	return &Reassembler{messages: msgs, active: len(msgs) - 1}
}

// Feed decodes a raw fragment and applies completed events in order.
// Bytes arriving after done are ignored.
func (r *Reassembler) Feed(fragment []byte) {
	if r.done {
		return
	}
	var events []stream.Event
	events, r.carry = stream.Decode(r.carry, fragment)
	for _, ev := range events {
		r.apply(ev)
		if r.done {
			return
		}
	}
}

func (r *Reassembler) apply(ev stream.Event) {
	msg := &r.messages[r.active]
	switch ev.Type {
	case stream.EventToken:
		msg.Content += ev.Data
	case stream.EventSources:
		var p stream.SourcesPayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
			logger.Warn("drop malformed sources payload", "err", err)
			return
		}
		msg.Citations = p.Sources
	case stream.EventImageGenerated, stream.EventImageUpdated:
		var p stream.ImagePayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
			logger.Warn("drop malformed image payload", "err", err)
			return
		}
		r.attach(models.SideEffectResult{
			Kind:    models.SideEffectImage,
			Status:  statusFor(p.Error),
			ID:      p.ID,
			Locator: p.URL,
			Error:   p.Error,
		})
	case stream.EventPDFSaved, stream.EventDocxSaved:
		var p stream.ExportPayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
			logger.Warn("drop malformed export payload", "err", err)
			return
		}
		r.attach(models.SideEffectResult{
			Kind:    models.SideEffectDocument,
			Status:  statusFor(p.Error),
			ID:      p.ID,
			Locator: p.DownloadURL,
			Error:   p.Error,
		})
	case stream.EventError:
		var p stream.ErrorPayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
			logger.Warn("drop malformed error payload", "err", err)
			return
		}
		r.lastErr = p.Message
	case stream.EventDone:
		r.done = true
	default:
		// unrecognized event kinds are ignored, the stream continues
	}
}

func statusFor(errMsg string) models.SideEffectStatus {
	if errMsg != "" {
		return models.SideEffectFailed
	}
	return models.SideEffectCompleted
}

// attach replaces a pending attachment with a matching ID, otherwise appends.
func (r *Reassembler) attach(res models.SideEffectResult) {
	msg := &r.messages[r.active]
	for i, a := range msg.Attachments {
		if res.ID != "" && a.ID == res.ID {
			msg.Attachments[i] = res
			return
		}
	}
	msg.Attachments = append(msg.Attachments, res)
}

// Done reports whether the terminal marker was decoded.
func (r *Reassembler) Done() bool { return r.done }

// Err returns the last advisory error event's message, if any.
func (r *Reassembler) Err() string { return r.lastErr }

// Messages returns the conversation including the in-progress turn.
func (r *Reassembler) Messages() []models.Message { return r.messages }

// Assistant returns the turn's assistant message as accumulated so far.
func (r *Reassembler) Assistant() models.Message { return r.messages[r.active] }
