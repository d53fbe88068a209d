// Package orchestrator drives one conversation turn end to end: resolve
// retrieval scope, stream tokens, interleave side-effect events, and
// terminate the stream well-formed no matter how generation ends.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"atelier/pkg/agents"
	"atelier/pkg/export"
	"atelier/pkg/history"
	"atelier/pkg/imagegen"
	"atelier/pkg/llm"
	"atelier/pkg/logger"
	"atelier/pkg/models"
	"atelier/pkg/retrieval"
	"atelier/pkg/stream"
	"atelier/pkg/telemetry"
)

// Emitter receives encoded turn events in emission order. Production uses
// stream.Encoder over the HTTP response; tests collect events directly.
type Emitter interface {
	Emit(stream.Event) error
}

// TurnRequest is one incoming turn.
type TurnRequest struct {
	AgentID    string
	Message    string
	Mode       retrieval.ScopeMode
	ProjectKey string
	TopK       int
}

type Orchestrator struct {
	History  *history.Store
	Agents   *agents.Registry
	Resolver *retrieval.Resolver
	LLM      llm.Client
	Exporter *export.Exporter
	Images   *imagegen.Generator
}

// RunTurn executes the turn state machine. It returns an error only for
// transport-level failures (the emitter rejecting a write) or abort; all
// upstream failures are reported in-stream and end with done.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest, em Emitter) error {
	agentID := o.Agents.Normalize(req.AgentID)
	persona := o.Agents.Get(agentID)
	start := time.Now()

	prior := o.History.Load(agentID)
	now := time.Now().UnixNano()
	userMsg := models.Message{Role: models.RoleUser, Content: req.Message, TS: now}
	assistant := models.Message{Role: models.RoleAssistant, TS: now}
	assistant.Attachments = DetectIntents(req.Message)

	finish := func(status string) {
		o.History.Append(agentID, userMsg, assistant)
		telemetry.TurnCompleted(agentID, status, time.Since(start))
	}

	// Retrieving
	retStart := time.Now()
	cands := o.Resolver.Resolve(ctx, retrieval.Request{
		AgentID:    agentID,
		Query:      req.Message,
		Mode:       req.Mode,
		ProjectKey: req.ProjectKey,
		TopK:       req.TopK,
	})
	telemetry.RetrievalObserved(time.Since(retStart), len(cands))
	assistant.Citations = retrieval.Citations(cands)
	if err := o.emit(em, stream.Sources(assistant.Citations)); err != nil {
		finish("aborted")
		return err
	}

	// Generating, with a bounded tool loop
	if o.LLM == nil {
		if err := o.emit(em, stream.Error("generation backend is not configured")); err != nil {
			finish("aborted")
			return err
		}
		o.failPending(&assistant, req.Message, em)
		if err := o.emit(em, stream.Done()); err != nil {
			finish("aborted")
			return err
		}
		finish("error")
		return nil
	}
	msgs := o.promptMessages(persona, prior, req.Message, cands)
	tools := o.toolSpecs()
	sawTokens := false
	status := "done"
	for iter := 0; ; iter++ {
		res, err := o.LLM.Stream(ctx, llm.Request{Messages: msgs, Tools: tools}, func(tok string) error {
			sawTokens = true
			assistant.Content += tok
			return o.emit(em, stream.Token(tok))
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				// user abort: no done, partial content persists on the
				// store's own schedule
				logger.Info("turn_aborted", "agent", agentID)
				finish("aborted")
				return ctx.Err()
			}
			msg := err.Error()
			if !sawTokens {
				msg = "generation failed before any output: " + msg
			}
			logger.Error("turn_generation_failed", "agent", agentID, "err", err)
			if eerr := o.emit(em, stream.Error(msg)); eerr != nil {
				finish("aborted")
				return eerr
			}
			status = "error"
			break
		}
		if len(res.ToolCalls) == 0 || iter >= maxToolIterations {
			if len(res.ToolCalls) > 0 {
				logger.Warn("tool_iterations_exhausted", "agent", agentID, "dropped", len(res.ToolCalls))
			}
			break
		}

		msgs = append(msgs, llm.ChatMessage{Role: "assistant", Content: res.Content, ToolCalls: res.ToolCalls})
		for _, tc := range res.ToolCalls {
			out := o.execTool(ctx, tc, req.ProjectKey)
			telemetry.SideEffectObserved(string(out.attachment.Kind), string(out.attachment.Status))
			o.claim(&assistant, out.attachment)
			if err := o.emit(em, out.event); err != nil {
				finish("aborted")
				return err
			}
			msgs = append(msgs, llm.ChatMessage{Role: "tool", ToolCallID: tc.ID, Content: out.feedback})
		}
	}

	// a pending result must never outlive the turn
	o.failPending(&assistant, req.Message, em)

	if err := o.emit(em, stream.Done()); err != nil {
		finish("aborted")
		return err
	}
	finish(status)
	if err := o.History.Flush(agentID); err != nil {
		logger.Error("turn_flush_failed", "agent", agentID, "err", err)
	}
	return nil
}

func (o *Orchestrator) emit(em Emitter, ev stream.Event) error {
	telemetry.StreamEventEmitted(ev.Type)
	return em.Emit(ev)
}

// claim replaces the first still-pending attachment of the same kind,
// otherwise appends. Keeps heuristic placeholders and tool results from
// double-counting.
func (o *Orchestrator) claim(msg *models.Message, res models.SideEffectResult) {
	for i, a := range msg.Attachments {
		if a.Status == models.SideEffectPending && a.Kind == res.Kind {
			msg.Attachments[i] = res
			return
		}
	}
	msg.Attachments = append(msg.Attachments, res)
}

// failPending force-transitions leftover pending side effects to failed
// and reports each in-stream before done.
func (o *Orchestrator) failPending(msg *models.Message, userText string, em Emitter) {
	docEvent := stream.EventPDFSaved
	if t := strings.ToLower(userText); strings.Contains(t, "docx") || strings.Contains(t, "word doc") {
		docEvent = stream.EventDocxSaved
	}
	const synthetic = "did not complete"
	for i, a := range msg.Attachments {
		if a.Status != models.SideEffectPending {
			continue
		}
		msg.Attachments[i].Status = models.SideEffectFailed
		msg.Attachments[i].Error = synthetic
		telemetry.SideEffectObserved(string(a.Kind), string(models.SideEffectFailed))
		var ev stream.Event
		if a.Kind == models.SideEffectImage {
			ev = stream.JSONEvent(stream.EventImageUpdated, stream.ImagePayload{ID: a.ID, Error: synthetic})
		} else {
			ev = stream.JSONEvent(docEvent, stream.ExportPayload{ID: a.ID, Error: synthetic})
		}
		if err := o.emit(em, ev); err != nil {
			return
		}
	}
}

// promptMessages assembles the generation prompt: persona, retrieved
// context, prior history, and the new user message.
func (o *Orchestrator) promptMessages(p agents.Persona, prior []models.Message, userText string, cands []retrieval.Candidate) []llm.ChatMessage {
	system := p.Prompt
	if len(cands) > 0 {
		var b strings.Builder
		b.WriteString(system)
		b.WriteString("\n\nReference passages, most relevant first:\n")
		for i, c := range cands {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, c.Title, c.Content)
		}
		system = b.String()
	}
	out := []llm.ChatMessage{{Role: "system", Content: system}}
	for _, m := range prior {
		if m.Content == "" {
			continue
		}
		out = append(out, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(out, llm.ChatMessage{Role: "user", Content: userText})
}
