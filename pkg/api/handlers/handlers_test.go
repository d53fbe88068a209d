package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"atelier/pkg/agents"
	"atelier/pkg/export"
	"atelier/pkg/history"
	"atelier/pkg/imagegen"
	"atelier/pkg/llm"
	"atelier/pkg/orchestrator"
	"atelier/pkg/retrieval"
	"atelier/pkg/store"

	"github.com/gorilla/mux"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func newTestRouter(t *testing.T, mock *llm.Mock) *mux.Router {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg, err := agents.LoadRegistry("")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	hist := history.NewStore(time.Hour)
	t.Cleanup(hist.Close)
	exp, err := export.NewExporter(t.TempDir())
	if err != nil {
		t.Fatalf("exporter: %v", err)
	}
	imgs, err := imagegen.NewGenerator(t.TempDir(), "", "")
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	emb := fixedEmbedder{}
	resolver := retrieval.NewResolver(emb, retrieval.NewPebbleIndex(), retrieval.DefaultProjectBias)
	orch := &orchestrator.Orchestrator{
		History:  hist,
		Agents:   reg,
		Resolver: resolver,
		LLM:      mock,
		Exporter: exp,
	}

	d := Deps{
		Orchestrator: orch,
		History:      hist,
		Agents:       reg,
		Embedder:     emb,
		Resolver:     resolver,
		Exporter:     exp,
		Images:       imgs,
	}
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	RegisterTurn(v1, d)
	RegisterHistory(v1, d)
	RegisterAgents(v1, d)
	RegisterSources(v1, d)
	RegisterProjects(v1, d)
	RegisterExports(v1, d)
	RegisterImages(v1, d)
	RegisterRetrieve(v1, d)
	r.PathPrefix("/downloads/").Handler(Downloads(d))
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestProjectLifecycle(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	rec := do(t, r, http.MethodPost, "/v1/projects", `{"key":"Nova-9","name":"Nova"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"key":"nova-9"`) {
		t.Fatalf("key not lowercased: %s", rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/v1/projects", `{"key":"nova-9"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/v1/projects", `{"key":"Bad Key!"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid key: %d", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/v1/projects/NOVA-9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get mixed case: %d", rec.Code)
	}

	rec = do(t, r, http.MethodDelete, "/v1/projects/nova-9", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = do(t, r, http.MethodGet, "/v1/projects/nova-9", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestProjectDeleteBlockedBySources(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	if rec := do(t, r, http.MethodPost, "/v1/projects", `{"key":"atlas"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d", rec.Code)
	}
	body := `{"title":"Atlas notes","content":"lore about the atlas world","agent_ids":["writer"],"scope":"project","project_key":"atlas"}`
	if rec := do(t, r, http.MethodPost, "/v1/sources", body); rec.Code != http.StatusCreated {
		t.Fatalf("create source: %d", rec.Code)
	}

	if rec := do(t, r, http.MethodDelete, "/v1/projects/atlas", ""); rec.Code != http.StatusConflict {
		t.Fatalf("delete with sources: %d", rec.Code)
	}
}

func TestSourceValidation(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	if rec := do(t, r, http.MethodPost, "/v1/sources", `{"title":"x","content":"  ","agent_ids":["writer"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty content: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/v1/sources", `{"title":"x","content":"text"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing agents: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/v1/sources", `{"title":"x","content":"text","agent_ids":["writer"],"scope":"project"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("project scope without key: %d", rec.Code)
	}
}

func TestSourceCRUD(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	rec := do(t, r, http.MethodPost, "/v1/sources", `{"title":"Guide","content":"helpful text","agent_ids":["writer"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	id := extractField(t, rec.Body.String(), "id")

	if rec = do(t, r, http.MethodGet, "/v1/sources/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if rec = do(t, r, http.MethodDelete, "/v1/sources/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec = do(t, r, http.MethodDelete, "/v1/sources/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: %d", rec.Code)
	}
}

func TestTurnStreamsFrames(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{{Tokens: []string{"Hi", " there"}}}}
	r := newTestRouter(t, mock)

	rec := do(t, r, http.MethodPost, "/v1/turn", `{"agent":"writer","message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("turn: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	out := rec.Body.String()
	for _, want := range []string{"event: token\ndata: Hi\n\n", "event: done\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stream missing %q in %q", want, out)
		}
	}
}

func TestTurnRejectsBadMode(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})
	if rec := do(t, r, http.MethodPost, "/v1/turn", `{"message":"hi","mode":"bogus"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode: %d", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	mock := &llm.Mock{Steps: []llm.MockStep{{Tokens: []string{"ok"}}}}
	r := newTestRouter(t, mock)

	if rec := do(t, r, http.MethodPost, "/v1/turn", `{"agent":"writer","message":"hello"}`); rec.Code != http.StatusOK {
		t.Fatalf("turn: %d", rec.Code)
	}
	rec := do(t, r, http.MethodGet, "/v1/history/writer", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"hello"`) {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}

	if rec = do(t, r, http.MethodDelete, "/v1/history/writer", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", rec.Code)
	}
	rec = do(t, r, http.MethodGet, "/v1/history/writer", "")
	if strings.Contains(rec.Body.String(), `"hello"`) {
		t.Fatalf("history not cleared: %s", rec.Body.String())
	}
}

func TestExportAndDownload(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	rec := do(t, r, http.MethodPost, "/v1/tools/export_pdf", `{"title":"Notes","content":"body text"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	name := extractField(t, rec.Body.String(), "filename")

	rec = do(t, r, http.MethodGet, "/downloads/"+name, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download: %d", rec.Code)
	}
	if rec = do(t, r, http.MethodGet, "/downloads/missing.pdf", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing download: %d", rec.Code)
	}
}

// extractField pulls a top-level string field out of a JSON body.
func extractField(t *testing.T, body, field string) string {
	t.Helper()
	marker := `"` + field + `":"`
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("field %q not in %s", field, body)
	}
	rest := body[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		t.Fatalf("unterminated field %q in %s", field, body)
	}
	return rest[:j]
}

func TestCreateSourceWithoutEmbedder(t *testing.T) {
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	reg, err := agents.LoadRegistry("")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	d := Deps{Agents: reg}
	r := mux.NewRouter()
	RegisterSources(r.PathPrefix("/v1").Subrouter(), d)

	rec := do(t, r, http.MethodPost, "/v1/sources",
		`{"title":"doc","content":"some text","agent_ids":["studio"]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("upload without embedder: %d %s", rec.Code, rec.Body.String())
	}

	// reads stay available
	rec = do(t, r, http.MethodGet, "/v1/sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list without embedder: %d", rec.Code)
	}
}

func TestProjectUpdate(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	rec := do(t, r, http.MethodPost, "/v1/projects", `{"key":"atlas","name":"Atlas"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodPut, "/v1/projects/ATLAS", `{"name":"Atlas v2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	if got := extractField(t, rec.Body.String(), "name"); got != "Atlas v2" {
		t.Fatalf("name = %q, want %q", got, "Atlas v2")
	}

	rec = do(t, r, http.MethodGet, "/v1/projects/atlas", "")
	if got := extractField(t, rec.Body.String(), "name"); got != "Atlas v2" {
		t.Fatalf("rename not persisted: %s", rec.Body.String())
	}

	rec = do(t, r, http.MethodPut, "/v1/projects/nosuch", `{"name":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update missing: %d", rec.Code)
	}
}

func TestRetrieveEndpoint(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	rec := do(t, r, http.MethodPost, "/v1/sources",
		`{"title":"fjord guide","content":"fjords are glacial valleys","agent_ids":["studio"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/v1/retrieve", `{"query":"what is a fjord?","agent":"studio"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("retrieve: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "glacial valleys") {
		t.Fatalf("match content missing: %s", rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/v1/retrieve", `{"query":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query: %d", rec.Code)
	}
}

func TestGenerateImageEndpoint(t *testing.T) {
	r := newTestRouter(t, &llm.Mock{})

	rec := do(t, r, http.MethodPost, "/v1/tools/generate_image", `{"prompt":"a quiet harbor","count":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "/v1/images/") {
		t.Fatalf("no image urls in response: %s", rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/v1/tools/generate_image", `{"prompt":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank prompt: %d", rec.Code)
	}
}
