package handlers

import (
	"net/http"

	"atelier/pkg/agents"
	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterAgents registers persona listing routes.
func RegisterAgents(r *mux.Router, d Deps) {
	r.HandleFunc("/agents", listAgents(d)).Methods(http.MethodGet)
}

func listAgents(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.JSONWrite(w, http.StatusOK, struct {
			Default string          `json:"default"`
			Agents  []agents.Persona `json:"agents"`
		}{Default: agents.DefaultAgentID, Agents: d.Agents.List()})
	}
}
