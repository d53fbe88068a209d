package retrieval

import (
	"strings"
	"testing"
)

func TestChunkTextShortInput(t *testing.T) {
	got := ChunkText("hello world")
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("got %v", got)
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if got := ChunkText("   \n"); got != nil {
		t.Fatalf("got %v", got)
	}
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("a", 1200) + strings.Repeat("b", 1000)
	got := ChunkText(text)
	if len(got) != 2 {
		t.Fatalf("got %d chunks", len(got))
	}
	if len(got[0]) != 1200 {
		t.Fatalf("first chunk %d chars", len(got[0]))
	}
	// second window starts 200 chars before the end of the first
	if !strings.HasPrefix(got[1], strings.Repeat("a", 200)) {
		t.Fatalf("second chunk missing overlap: %q...", got[1][:16])
	}
}

func TestChunkTextScrubsNUL(t *testing.T) {
	got := ChunkText("foo\x00bar")
	if len(got) != 1 || got[0] != "foobar" {
		t.Fatalf("got %v", got)
	}
}
