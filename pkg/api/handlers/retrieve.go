package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"atelier/pkg/models"
	"atelier/pkg/retrieval"
	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterRetrieve registers the standalone retrieval route, useful for
// inspecting what a turn would see without running one.
func RegisterRetrieve(r *mux.Router, d Deps) {
	if d.Resolver == nil {
		return
	}
	r.HandleFunc("/retrieve", retrieveHandler(d)).Methods(http.MethodPost)
}

type retrieveBody struct {
	Query      string `json:"query"`
	Agent      string `json:"agent"`
	Mode       string `json:"mode"`
	ProjectKey string `json:"project_key"`
	TopK       int    `json:"top_k"`
}

type retrieveMatch struct {
	SourceID   string       `json:"source_id"`
	ChunkIndex int          `json:"chunk_index"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Distance   float64      `json:"distance"`
	Scope      models.Scope `json:"scope"`
	ProjectKey string       `json:"project_key,omitempty"`
}

func retrieveHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body retrieveBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if strings.TrimSpace(body.Query) == "" {
			utils.JSONError(w, http.StatusBadRequest, "query is required")
			return
		}
		mode := retrieval.ScopeMode(body.Mode)
		switch mode {
		case "", retrieval.ModeGeneric, retrieval.ModeProject, retrieval.ModeHybrid:
		default:
			utils.JSONError(w, http.StatusBadRequest, "unknown mode")
			return
		}

		cands := d.Resolver.Resolve(r.Context(), retrieval.Request{
			AgentID:    d.Agents.Normalize(body.Agent),
			Query:      body.Query,
			Mode:       mode,
			ProjectKey: body.ProjectKey,
			TopK:       body.TopK,
		})
		matches := make([]retrieveMatch, 0, len(cands))
		for _, c := range cands {
			matches = append(matches, retrieveMatch{
				SourceID:   c.SourceID,
				ChunkIndex: c.ChunkIndex,
				Title:      c.Title,
				Content:    c.Content,
				Distance:   c.Distance,
				Scope:      c.Scope,
				ProjectKey: c.ProjectKey,
			})
		}
		utils.JSONWrite(w, http.StatusOK, struct {
			Matches []retrieveMatch `json:"matches"`
		}{Matches: matches})
	}
}
