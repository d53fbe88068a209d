// Package agents loads and resolves assistant personas. Personas are JSON
// files in a directory; unknown or malformed agent ids resolve to the
// default persona so a turn never fails on identity.
package agents

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"atelier/pkg/logger"
)

// Persona is one assistant identity.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt"`
}

// DefaultAgentID is the fallback persona for unknown ids.
const DefaultAgentID = "studio"

var builtin = []Persona{
	{ID: "studio", Name: "Studio Assistant", Description: "General-purpose studio helper", Prompt: "You are a helpful studio assistant."},
	{ID: "writer", Name: "Writer", Description: "Narrative and copy drafting", Prompt: "You are a writing assistant. Draft and refine prose."},
	{ID: "artist", Name: "Artist", Description: "Visual concepting and image prompts", Prompt: "You are an art direction assistant."},
}

type Registry struct {
	mu        sync.RWMutex
	dir       string
	personas  map[string]Persona
	defaultID string
}

// LoadRegistry reads persona files from dir. A missing or empty directory
// falls back to the built-in personas.
func LoadRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir, defaultID: DefaultAgentID}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	personas := map[string]Persona{}
	if r.dir != "" {
		entries, err := os.ReadDir(r.dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
					continue
				}
				path := filepath.Join(r.dir, e.Name())
				data, err := os.ReadFile(path)
				if err != nil {
					logger.Warn("persona_read_failed", "path", path, "err", err)
					continue
				}
				var p Persona
				if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
					logger.Warn("persona_invalid", "path", path, "err", err)
					continue
				}
				personas[normalize(p.ID)] = p
			}
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if len(personas) == 0 {
		for _, p := range builtin {
			personas[p.ID] = p
		}
	}
	if _, ok := personas[r.defaultID]; !ok {
		// first persona alphabetically becomes the fallback
		ids := make([]string, 0, len(personas))
		for id := range personas {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		r.defaultID = ids[0]
	}

	r.mu.Lock()
	r.personas = personas
	r.mu.Unlock()
	logger.Info("personas_loaded", "count", len(personas), "dir", r.dir)
	return nil
}

func normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, "-", "_")
	id = strings.ReplaceAll(id, " ", "_")
	return id
}

// Normalize maps a raw agent id to a known persona id, falling back to
// the default persona for unknown input.
func (r *Registry) Normalize(id string) string {
	n := normalize(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.personas[n]; ok {
		return n
	}
	return r.defaultID
}

// Get returns the persona for id, resolving unknown ids to the default.
func (r *Registry) Get(id string) Persona {
	n := r.Normalize(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas[n]
}

// List returns all personas sorted by id.
func (r *Registry) List() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
