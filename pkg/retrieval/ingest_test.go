package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"atelier/pkg/models"
	"atelier/pkg/store"
)

// flakyEmbedder fails once a call budget is spent.
type flakyEmbedder struct {
	calls   int
	failAt  int
	failErr error
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	if f.calls >= f.failAt {
		return nil, f.failErr
	}
	return []float64{1, 0, 0}, nil
}

func openIngestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestIngestSourcePersistsChunksAndMetadata(t *testing.T) {
	openIngestStore(t)
	src := models.Source{ID: "s1", Title: "guide", AgentIDs: []string{"studio"}, Scope: models.ScopeGeneric}
	text := strings.Repeat("tidal patterns shift with the moon. ", 60)

	got, err := IngestSource(context.Background(), &flakyEmbedder{failAt: 1 << 30}, src, text)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got.ChunkCount < 2 {
		t.Fatalf("chunk count = %d, want at least 2", got.ChunkCount)
	}
	chunks, err := store.ListChunks("s1")
	if err != nil || len(chunks) != got.ChunkCount {
		t.Fatalf("stored chunks = %d (err %v), want %d", len(chunks), err, got.ChunkCount)
	}
	if _, err := store.GetSource("s1"); err != nil {
		t.Fatalf("source record missing: %v", err)
	}
}

func TestIngestSourceCleansUpOnEmbedFailure(t *testing.T) {
	openIngestStore(t)
	src := models.Source{ID: "s2", Title: "guide", AgentIDs: []string{"studio"}, Scope: models.ScopeGeneric}
	text := strings.Repeat("harbor currents run strongest at the narrows. ", 60)

	emb := &flakyEmbedder{failAt: 2, failErr: errors.New("embed backend down")}
	_, err := IngestSource(context.Background(), emb, src, text)
	if err == nil {
		t.Fatal("expected ingest to fail")
	}

	// the first chunk was saved before the failure; it must not linger
	chunks, lerr := store.ListChunks("s2")
	if lerr != nil {
		t.Fatalf("list chunks: %v", lerr)
	}
	if len(chunks) != 0 {
		t.Fatalf("partial chunks left behind: %d", len(chunks))
	}
	if _, gerr := store.GetSource("s2"); !store.IsNotFound(gerr) {
		t.Fatalf("source record should not exist, got err %v", gerr)
	}
}

func TestIngestSourceRejectsEmptyText(t *testing.T) {
	openIngestStore(t)
	src := models.Source{ID: "s3", AgentIDs: []string{"studio"}, Scope: models.ScopeGeneric}
	if _, err := IngestSource(context.Background(), &flakyEmbedder{failAt: 1 << 30}, src, "  \x00 "); err == nil {
		t.Fatal("expected error for empty text")
	}
}
