package history

import (
	"testing"
	"time"

	"atelier/pkg/models"
	"atelier/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
}

func msg(role models.Role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func TestDebouncedWriteCoalesces(t *testing.T) {
	openStore(t)
	s := NewStore(50 * time.Millisecond)

	s.Append("writer", msg(models.RoleUser, "one"))
	s.Append("writer", msg(models.RoleAssistant, "two"))

	// before the quiet period nothing is durable yet
	got, err := store.GetHistory("writer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("persisted too early: %d messages", len(got))
	}

	time.Sleep(150 * time.Millisecond)
	got, err = store.GetHistory("writer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Content != "one" || got[1].Content != "two" {
		t.Fatalf("persisted = %+v", got)
	}
}

func TestIndependentAgentTimers(t *testing.T) {
	openStore(t)
	s := NewStore(60 * time.Millisecond)

	s.Append("writer", msg(models.RoleUser, "w"))
	time.Sleep(40 * time.Millisecond)
	// artist activity must not reset writer's pending timer
	s.Append("artist", msg(models.RoleUser, "a"))
	time.Sleep(40 * time.Millisecond)

	got, _ := store.GetHistory("writer")
	if len(got) != 1 {
		t.Fatalf("writer write was delayed by artist activity: %d", len(got))
	}
}

func TestLazyLoadOnce(t *testing.T) {
	openStore(t)
	if err := store.SaveHistory("writer", []models.Message{msg(models.RoleUser, "persisted")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := NewStore(time.Hour)

	got := s.Load("writer")
	if len(got) != 1 || got[0].Content != "persisted" {
		t.Fatalf("load = %+v", got)
	}

	// mutate durable state behind the store's back; in-memory wins now
	if err := store.SaveHistory("writer", nil); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got = s.Load("writer")
	if len(got) != 1 {
		t.Fatalf("reloaded instead of reusing memory: %+v", got)
	}
}

func TestClearIsSynchronous(t *testing.T) {
	openStore(t)
	s := NewStore(time.Hour)
	s.Append("writer", msg(models.RoleUser, "gone soon"))

	if err := s.Clear("writer"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := store.GetHistory("writer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("still persisted after clear: %+v", got)
	}
	if in := s.Load("writer"); len(in) != 0 {
		t.Fatalf("in-memory not cleared: %+v", in)
	}
}

func TestFlushBypassesDebounce(t *testing.T) {
	openStore(t)
	s := NewStore(time.Hour)
	s.Append("writer", msg(models.RoleUser, "now"))
	if err := s.Flush("writer"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got, _ := store.GetHistory("writer")
	if len(got) != 1 {
		t.Fatalf("flush did not persist: %+v", got)
	}
}
