package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"atelier/pkg/models"
	"atelier/pkg/store"
	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

var projectKeyRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// RegisterProjects registers project workspace routes.
func RegisterProjects(r *mux.Router, d Deps) {
	r.HandleFunc("/projects", createProject(d)).Methods(http.MethodPost)
	r.HandleFunc("/projects", listProjects(d)).Methods(http.MethodGet)
	r.HandleFunc("/projects/{key}", getProject(d)).Methods(http.MethodGet)
	r.HandleFunc("/projects/{key}", updateProject(d)).Methods(http.MethodPut)
	r.HandleFunc("/projects/{key}", deleteProject(d)).Methods(http.MethodDelete)
}

func createProject(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p models.Project
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		p.Key = strings.ToLower(strings.TrimSpace(p.Key))
		if !projectKeyRe.MatchString(p.Key) {
			utils.JSONError(w, http.StatusBadRequest, "key must match [a-z0-9_-]+")
			return
		}
		if _, err := store.GetProject(p.Key); err == nil {
			utils.JSONError(w, http.StatusConflict, "project already exists")
			return
		} else if !store.IsNotFound(err) {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		now := time.Now().UTC().UnixNano()
		p.CreatedTS = now
		p.UpdatedTS = now
		if err := store.SaveProject(p); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusCreated, p)
	}
}

func listProjects(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := store.ListProjects()
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusOK, struct {
			Projects []models.Project `json:"projects"`
		}{Projects: ps})
	}
}

func getProject(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToLower(mux.Vars(r)["key"])
		p, err := store.GetProject(key)
		if err != nil {
			if store.IsNotFound(err) {
				utils.JSONError(w, http.StatusNotFound, "project not found")
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusOK, p)
	}
}

// updateProject renames an existing project; the key is immutable.
func updateProject(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToLower(mux.Vars(r)["key"])
		p, err := store.GetProject(key)
		if err != nil {
			if store.IsNotFound(err) {
				utils.JSONError(w, http.StatusNotFound, "project not found")
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		p.Name = strings.TrimSpace(body.Name)
		p.UpdatedTS = time.Now().UTC().UnixNano()
		if err := store.SaveProject(p); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusOK, p)
	}
}

// deleteProject refuses to remove a project that still owns sources so
// scoped knowledge never goes dangling.
func deleteProject(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToLower(mux.Vars(r)["key"])
		if _, err := store.GetProject(key); err != nil {
			if store.IsNotFound(err) {
				utils.JSONError(w, http.StatusNotFound, "project not found")
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		srcs, err := store.ListSources()
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, s := range srcs {
			if s.ProjectKey == key {
				utils.JSONError(w, http.StatusConflict, "project still has sources")
				return
			}
		}
		if err := store.DeleteProject(key); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
