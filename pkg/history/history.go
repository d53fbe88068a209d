// Package history keeps one ordered message list per agent with debounced
// write-back to the store. Rapid successive mutations coalesce into a
// single durable write after a quiet period; Clear bypasses the debounce.
package history

import (
	"sync"
	"time"

	"atelier/pkg/logger"
	"atelier/pkg/models"
	"atelier/pkg/store"
)

// DefaultDebounce is the quiet period before a mutated history is
// persisted.
const DefaultDebounce = 600 * time.Millisecond

type agentState struct {
	msgs   []models.Message
	loaded bool
	timer  *time.Timer
}

// Store is the explicit per-agent history holder handed to the request
// path. Each agent's debounce timer is independent; flushing one agent
// never disturbs another's pending write.
type Store struct {
	mu       sync.Mutex
	debounce time.Duration
	agents   map[string]*agentState
}

func NewStore(debounce time.Duration) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Store{debounce: debounce, agents: make(map[string]*agentState)}
}

// state returns the agent's in-memory state, loading persisted history on
// first reference.
func (s *Store) state(agentID string) *agentState {
	st, ok := s.agents[agentID]
	if !ok {
		st = &agentState{}
		s.agents[agentID] = st
	}
	if !st.loaded {
		msgs, err := store.GetHistory(agentID)
		if err != nil {
			logger.Warn("history_load_failed", "agent", agentID, "err", err)
			msgs = []models.Message{}
		}
		st.msgs = msgs
		st.loaded = true
	}
	return st
}

// Load returns a copy of the agent's history, loading it from the store
// the first time the agent becomes active.
func (s *Store) Load(agentID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(agentID)
	out := make([]models.Message, len(st.msgs))
	copy(out, st.msgs)
	return out
}

// Append adds messages to the agent's history and schedules a debounced
// write.
func (s *Store) Append(agentID string, msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(agentID)
	st.msgs = append(st.msgs, msgs...)
	s.schedule(agentID, st)
}

// Replace swaps the agent's entire history and schedules a debounced
// write.
func (s *Store) Replace(agentID string, msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(agentID)
	st.msgs = append([]models.Message{}, msgs...)
	s.schedule(agentID, st)
}

// schedule cancels any pending write for the agent and arms a fresh
// timer. Caller holds s.mu.
func (s *Store) schedule(agentID string, st *agentState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(s.debounce, func() { s.persist(agentID) })
}

func (s *Store) persist(agentID string) {
	s.mu.Lock()
	st, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return
	}
	st.timer = nil
	msgs := make([]models.Message, len(st.msgs))
	copy(msgs, st.msgs)
	s.mu.Unlock()
	if err := store.SaveHistory(agentID, msgs); err != nil {
		logger.Error("history_persist_failed", "agent", agentID, "err", err)
	}
}

// Flush persists the agent's history immediately, cancelling any pending
// debounce. Used at turn completion.
func (s *Store) Flush(agentID string) error {
	s.mu.Lock()
	st, ok := s.agents[agentID]
	if !ok || !st.loaded {
		s.mu.Unlock()
		return nil
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	msgs := make([]models.Message, len(st.msgs))
	copy(msgs, st.msgs)
	s.mu.Unlock()
	return store.SaveHistory(agentID, msgs)
}

// Clear wipes the agent's history in memory and durably, synchronously.
func (s *Store) Clear(agentID string) error {
	s.mu.Lock()
	st, ok := s.agents[agentID]
	if ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(s.agents, agentID)
	}
	s.mu.Unlock()
	return store.DeleteHistory(agentID)
}

// Close flushes every agent with a pending write. Called at shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	var pending []string
	for id, st := range s.agents {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
			pending = append(pending, id)
		}
	}
	s.mu.Unlock()
	for _, id := range pending {
		if err := s.Flush(id); err != nil {
			logger.Error("history_close_flush_failed", "agent", id, "err", err)
		}
	}
}
