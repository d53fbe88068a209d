package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"atelier/pkg/agents"
	"atelier/pkg/export"
	"atelier/pkg/history"
	"atelier/pkg/llm"
	"atelier/pkg/models"
	"atelier/pkg/retrieval"
	"atelier/pkg/store"
	"atelier/pkg/stream"
)

type collector struct {
	events []stream.Event
	fail   bool
}

func (c *collector) Emit(ev stream.Event) error {
	if c.fail {
		return errors.New("transport closed")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) types() []string {
	var out []string
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func (c *collector) last() stream.Event { return c.events[len(c.events)-1] }

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0}, nil
}

type stubIndex struct{ rows []retrieval.Row }

func (s stubIndex) Search(ctx context.Context, q []float64, limit int) ([]retrieval.Row, error) {
	return s.rows, nil
}

func newOrchestrator(t *testing.T, mock *llm.Mock, rows []retrieval.Row) *Orchestrator {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	reg, err := agents.LoadRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	exp, err := export.NewExporter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &Orchestrator{
		History:  history.NewStore(time.Hour),
		Agents:   reg,
		Resolver: retrieval.NewResolver(stubEmbedder{}, stubIndex{rows: rows}, 0),
		LLM:      mock,
		Exporter: exp,
	}
}

func TestPlainTurn(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{{Tokens: []string{"Hel", "lo"}}}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{}

	if err := o.RunTurn(context.Background(), TurnRequest{AgentID: "writer", Message: "hi"}, c); err != nil {
		t.Fatal(err)
	}
	want := []string{stream.EventSources, stream.EventToken, stream.EventToken, stream.EventDone}
	got := c.types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v", got)
	}

	msgs, err := store.GetHistory("writer")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages", len(msgs))
	}
	if msgs[1].Role != models.RoleAssistant || msgs[1].Content != "Hello" {
		t.Fatalf("assistant = %+v", msgs[1])
	}
}

func TestSourcesEmittedOnceWithCitations(t *testing.T) {
	rows := []retrieval.Row{
		{SourceID: "s1", Title: "Lore", ChunkIndex: 0, AgentID: "studio", Scope: models.ScopeGeneric, Distance: 0.1, Content: "ctx"},
	}
	mock := &llm.Mock{Steps: []llm.MockStep{{Tokens: []string{"ok"}}}}
	o := newOrchestrator(t, mock, rows)
	c := &collector{}
	if err := o.RunTurn(context.Background(), TurnRequest{AgentID: "studio", Message: "q", Mode: retrieval.ModeHybrid}, c); err != nil {
		t.Fatal(err)
	}
	count := 0
	var payload stream.SourcesPayload
	for _, ev := range c.events {
		if ev.Type == stream.EventSources {
			count++
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				t.Fatal(err)
			}
		}
	}
	if count != 1 {
		t.Fatalf("sources emitted %d times", count)
	}
	if len(payload.Sources) != 1 || payload.Sources[0].SourceID != "s1" {
		t.Fatalf("payload = %+v", payload)
	}
	// retrieved passages reach the prompt
	sys := mock.Requests[0].Messages[0]
	if sys.Role != "system" || !strings.Contains(sys.Content, "ctx") {
		t.Fatalf("system prompt = %+v", sys)
	}
}

func TestExportPDFScenario(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{
		{
			Tokens: []string{"Saving your document."},
			ToolCalls: []llm.ToolCall{{
				ID: "call1", Name: "export_pdf",
				Arguments: `{"title":"Design Notes","content":"chapter text"}`,
			}},
		},
		{Tokens: []string{" Done."}},
	}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{}

	err := o.RunTurn(context.Background(), TurnRequest{
		AgentID: "writer", Message: "export this as a PDF", ProjectKey: "mygame",
	}, c)
	if err != nil {
		t.Fatal(err)
	}

	types := c.types()
	if types[len(types)-1] != stream.EventDone {
		t.Fatalf("stream not terminated by done: %v", types)
	}
	var saved *stream.ExportPayload
	for _, ev := range c.events {
		if ev.Type == stream.EventPDFSaved {
			var p stream.ExportPayload
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				t.Fatal(err)
			}
			saved = &p
		}
	}
	if saved == nil {
		t.Fatal("no pdf_saved event")
	}
	if saved.Error != "" || saved.Filename == "" || !strings.HasPrefix(saved.DownloadURL, "/downloads/") {
		t.Fatalf("pdf_saved = %+v", saved)
	}

	msgs, _ := store.GetHistory("writer")
	att := msgs[1].Attachments
	if len(att) != 1 {
		t.Fatalf("attachments = %+v", att)
	}
	if att[0].Status != models.SideEffectCompleted || att[0].Kind != models.SideEffectDocument {
		t.Fatalf("attachment = %+v", att[0])
	}
	// tool feedback went back to the model
	last := mock.Requests[1].Messages[len(mock.Requests[1].Messages)-1]
	if last.Role != "tool" || !strings.Contains(last.Content, saved.Filename) {
		t.Fatalf("tool feedback = %+v", last)
	}
}

func TestPendingNeverLeaks(t *testing.T) {
	// heuristic pre-creates a pending export, model never calls the tool
	mock := &llm.Mock{Steps: []llm.MockStep{{Tokens: []string{"Sure."}}}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{}

	if err := o.RunTurn(context.Background(), TurnRequest{AgentID: "writer", Message: "please export this as a pdf"}, c); err != nil {
		t.Fatal(err)
	}
	msgs, _ := store.GetHistory("writer")
	att := msgs[1].Attachments
	if len(att) != 1 || att[0].Status != models.SideEffectFailed || att[0].Error != "did not complete" {
		t.Fatalf("attachment = %+v", att)
	}
	// the failure was reported in-stream before done
	types := c.types()
	if types[len(types)-1] != stream.EventDone || types[len(types)-2] != stream.EventPDFSaved {
		t.Fatalf("events = %v", types)
	}
}

func TestGenerationFailureEmitsErrorThenDone(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{{Err: errors.New("upstream 500")}}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{}

	if err := o.RunTurn(context.Background(), TurnRequest{AgentID: "writer", Message: "hi"}, c); err != nil {
		t.Fatal(err)
	}
	types := c.types()
	if types[len(types)-2] != stream.EventError || types[len(types)-1] != stream.EventDone {
		t.Fatalf("events = %v", types)
	}
}

func TestAbortSkipsDone(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{{Tokens: []string{"a", "b", "c"}}}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.RunTurn(ctx, TurnRequest{AgentID: "writer", Message: "hi"}, c)
	if err == nil {
		t.Fatal("expected abort error")
	}
	for _, ev := range c.events {
		if ev.Type == stream.EventDone {
			t.Fatalf("done emitted on abort: %v", c.types())
		}
	}
}

func TestDisallowedToolRejected(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{
		{ToolCalls: []llm.ToolCall{{ID: "x", Name: "rm_rf", Arguments: `{}`}}},
		{Tokens: []string{"ok"}},
	}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{}
	if err := o.RunTurn(context.Background(), TurnRequest{AgentID: "writer", Message: "hi"}, c); err != nil {
		t.Fatal(err)
	}
	sawError := false
	for _, ev := range c.events {
		if ev.Type == stream.EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("no error event for disallowed tool: %v", c.types())
	}
	if c.last().Type != stream.EventDone {
		t.Fatalf("stream not terminated: %v", c.types())
	}
}

func TestToolIterationsBounded(t *testing.T) {
	call := llm.ToolCall{ID: "c", Name: "export_pdf", Arguments: `{"title":"t","content":"body"}`}
	mock := &llm.Mock{Steps: []llm.MockStep{
		{ToolCalls: []llm.ToolCall{call}},
		{ToolCalls: []llm.ToolCall{call}},
		{ToolCalls: []llm.ToolCall{call}},
		{ToolCalls: []llm.ToolCall{call}},
	}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{}
	if err := o.RunTurn(context.Background(), TurnRequest{AgentID: "writer", Message: "hi"}, c); err != nil {
		t.Fatal(err)
	}
	if len(mock.Requests) != maxToolIterations+1 {
		t.Fatalf("LLM called %d times", len(mock.Requests))
	}
	if c.last().Type != stream.EventDone {
		t.Fatalf("stream not terminated: %v", c.types())
	}
}

func TestTransportFailureAborts(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{{Tokens: []string{"a"}}}}
	o := newOrchestrator(t, mock, nil)
	c := &collector{fail: true}
	if err := o.RunTurn(context.Background(), TurnRequest{AgentID: "writer", Message: "hi"}, c); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestDetectIntents(t *testing.T) {
	cases := []struct {
		text string
		kind models.SideEffectKind
		want bool
	}{
		{"export this as a PDF", models.SideEffectDocument, true},
		{"save it to docx please", models.SideEffectDocument, true},
		{"draw an image of a castle", models.SideEffectImage, true},
		{"tell me about PDFs", models.SideEffectDocument, false},
		{"what's the weather", models.SideEffectDocument, false},
	}
	for _, c := range cases {
		got := DetectIntents(c.text)
		found := false
		for _, r := range got {
			if r.Kind == c.kind {
				found = true
				if r.Status != models.SideEffectPending || r.ID == "" {
					t.Fatalf("%q: placeholder = %+v", c.text, r)
				}
			}
		}
		if found != c.want {
			t.Fatalf("DetectIntents(%q) found=%v want=%v", c.text, found, c.want)
		}
	}
}
