package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"atelier/pkg/models"
	"atelier/pkg/retrieval"
	"atelier/pkg/store"
	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterSources registers knowledge upload and management routes.
func RegisterSources(r *mux.Router, d Deps) {
	r.HandleFunc("/sources", createSource(d)).Methods(http.MethodPost)
	r.HandleFunc("/sources", listSources(d)).Methods(http.MethodGet)
	r.HandleFunc("/sources/{id}", getSource(d)).Methods(http.MethodGet)
	r.HandleFunc("/sources/{id}", deleteSource(d)).Methods(http.MethodDelete)
}

type sourceBody struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	AgentIDs   []string `json:"agent_ids"`
	Scope      string   `json:"scope"`
	ProjectKey string   `json:"project_key"`
}

// createSource ingests an uploaded document: chunk, embed, persist.
func createSource(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Embedder == nil {
			utils.JSONError(w, http.StatusServiceUnavailable, "embeddings are not configured")
			return
		}
		var body sourceBody
		dec := json.NewDecoder(io.LimitReader(r.Body, d.uploadCap()))
		if err := dec.Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json or body too large")
			return
		}
		if strings.TrimSpace(body.Content) == "" {
			utils.JSONError(w, http.StatusBadRequest, "content is required")
			return
		}
		scope := models.Scope(body.Scope)
		if scope == "" {
			scope = models.ScopeGeneric
		}
		if scope != models.ScopeGeneric && scope != models.ScopeProject {
			utils.JSONError(w, http.StatusBadRequest, "unknown scope")
			return
		}
		projectKey := strings.ToLower(strings.TrimSpace(body.ProjectKey))
		if scope == models.ScopeProject && projectKey == "" {
			utils.JSONError(w, http.StatusBadRequest, "project scope requires project_key")
			return
		}
		if len(body.AgentIDs) == 0 {
			utils.JSONError(w, http.StatusBadRequest, "agent_ids is required")
			return
		}
		ids := make([]string, 0, len(body.AgentIDs))
		for _, id := range body.AgentIDs {
			ids = append(ids, d.Agents.Normalize(id))
		}

		src := models.Source{
			ID:         utils.GenID(),
			Title:      strings.TrimSpace(body.Title),
			AgentIDs:   ids,
			Scope:      scope,
			ProjectKey: projectKey,
		}
		src, err := retrieval.IngestSource(r.Context(), d.Embedder, src, body.Content)
		if err != nil {
			utils.JSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusCreated, src)
	}
}

func listSources(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		srcs, err := store.ListSources()
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusOK, struct {
			Sources []models.Source `json:"sources"`
		}{Sources: srcs})
	}
}

func getSource(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := store.GetSource(mux.Vars(r)["id"])
		if err != nil {
			if store.IsNotFound(err) {
				utils.JSONError(w, http.StatusNotFound, "source not found")
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusOK, src)
	}
}

// deleteSource removes the source record and all of its chunks.
func deleteSource(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := store.GetSource(id); err != nil {
			if store.IsNotFound(err) {
				utils.JSONError(w, http.StatusNotFound, "source not found")
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := store.DeleteSource(id); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
