package client

import (
	"testing"

	"atelier/pkg/models"
	"atelier/pkg/stream"
)

func feedEvents(r *Reassembler, evs ...stream.Event) {
	for _, ev := range evs {
		r.Feed(stream.Encode(ev))
	}
}

func TestTokensAccumulate(t *testing.T) {
	r := Begin(nil, "hi")
	feedEvents(r,
		stream.Token("Hel"),
		stream.Token("lo"),
		stream.Done(),
	)
	if !r.Done() {
		t.Fatal("expected done")
	}
	if got := r.Assistant().Content; got != "Hello" {
		t.Fatalf("content = %q", got)
	}
}

func TestBytesAfterDoneIgnored(t *testing.T) {
	r := Begin(nil, "hi")
	feedEvents(r, stream.Token("a"), stream.Done())
	feedEvents(r, stream.Token("b"), stream.Token("c"))
	if got := r.Assistant().Content; got != "a" {
		t.Fatalf("content = %q, want %q", got, "a")
	}
}

func TestDoneMidFragment(t *testing.T) {
	// done and trailing tokens delivered in one fragment
	var raw []byte
	raw = append(raw, stream.Encode(stream.Token("x"))...)
	raw = append(raw, stream.Encode(stream.Done())...)
	raw = append(raw, stream.Encode(stream.Token("y"))...)
	r := Begin(nil, "hi")
	r.Feed(raw)
	if got := r.Assistant().Content; got != "x" {
		t.Fatalf("content = %q", got)
	}
}

func TestMalformedSidePayloadDropped(t *testing.T) {
	r := Begin(nil, "hi")
	feedEvents(r,
		stream.Token("ok"),
		stream.Event{Type: stream.EventSources, Data: "{not json"},
		stream.Token(" still ok"),
		stream.Done(),
	)
	if got := r.Assistant().Content; got != "ok still ok" {
		t.Fatalf("content = %q", got)
	}
	if r.Assistant().Citations != nil {
		t.Fatalf("citations should stay empty, got %+v", r.Assistant().Citations)
	}
}

func TestSourcesAndAttachments(t *testing.T) {
	r := Begin([]models.Message{{Role: models.RoleUser, Content: "earlier"}}, "export this")
	feedEvents(r,
		stream.Sources([]models.Citation{{SourceID: "s1", Title: "Doc", ChunkIndices: []int{0, 2}}}),
		stream.Token("Saving."),
		stream.JSONEvent(stream.EventPDFSaved, stream.ExportPayload{ID: "e1", Filename: "doc.pdf", DownloadURL: "/downloads/doc.pdf"}),
		stream.Done(),
	)
	msg := r.Assistant()
	if len(msg.Citations) != 1 || msg.Citations[0].SourceID != "s1" {
		t.Fatalf("citations = %+v", msg.Citations)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %+v", msg.Attachments)
	}
	a := msg.Attachments[0]
	if a.Kind != models.SideEffectDocument || a.Status != models.SideEffectCompleted || a.Locator != "/downloads/doc.pdf" {
		t.Fatalf("attachment = %+v", a)
	}
	if got := len(r.Messages()); got != 3 {
		t.Fatalf("message count = %d", got)
	}
}

func TestFailedImageAttachment(t *testing.T) {
	r := Begin(nil, "draw")
	feedEvents(r,
		stream.JSONEvent(stream.EventImageGenerated, stream.ImagePayload{ID: "img1", Error: "backend unavailable"}),
		stream.Done(),
	)
	a := r.Assistant().Attachments[0]
	if a.Status != models.SideEffectFailed || a.Error == "" {
		t.Fatalf("attachment = %+v", a)
	}
}

func TestErrorEventIsAdvisory(t *testing.T) {
	r := Begin(nil, "hi")
	feedEvents(r,
		stream.Error("upstream hiccup"),
		stream.Token("recovered"),
		stream.Done(),
	)
	if r.Err() != "upstream hiccup" {
		t.Fatalf("err = %q", r.Err())
	}
	if got := r.Assistant().Content; got != "recovered" {
		t.Fatalf("content = %q", got)
	}
}
