package handlers

import (
	"encoding/json"
	"net/http"

	"atelier/pkg/models"
	"atelier/pkg/store"
	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterHistory registers conversation persistence routes.
func RegisterHistory(r *mux.Router, d Deps) {
	r.HandleFunc("/history", listHistoryAgents(d)).Methods(http.MethodGet)
	r.HandleFunc("/history/{agent}", getHistory(d)).Methods(http.MethodGet)
	r.HandleFunc("/history/{agent}", putHistory(d)).Methods(http.MethodPut)
	r.HandleFunc("/history/{agent}", clearHistory(d)).Methods(http.MethodDelete)
}

func listHistoryAgents(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := store.ListHistoryAgents()
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusOK, struct {
			Agents []string `json:"agents"`
		}{Agents: ids})
	}
}

func getHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := d.Agents.Normalize(mux.Vars(r)["agent"])
		msgs := d.History.Load(agent)
		utils.JSONWrite(w, http.StatusOK, struct {
			Agent    string           `json:"agent"`
			Messages []models.Message `json:"messages"`
		}{Agent: agent, Messages: msgs})
	}
}

// putHistory replaces an agent's transcript wholesale. Used by clients
// that edit or truncate a conversation locally.
func putHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := d.Agents.Normalize(mux.Vars(r)["agent"])
		var body struct {
			Messages []models.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		d.History.Replace(agent, body.Messages)
		if err := d.History.Flush(agent); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clearHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := d.Agents.Normalize(mux.Vars(r)["agent"])
		if err := d.History.Clear(agent); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
