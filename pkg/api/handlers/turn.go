package handlers

import (
	"encoding/json"
	"net/http"

	"atelier/pkg/logger"
	"atelier/pkg/orchestrator"
	"atelier/pkg/retrieval"
	"atelier/pkg/stream"
	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterTurn registers the streaming conversation endpoint.
func RegisterTurn(r *mux.Router, d Deps) {
	r.HandleFunc("/turn", turnHandler(d)).Methods(http.MethodPost)
}

type turnBody struct {
	Agent      string `json:"agent"`
	Message    string `json:"message"`
	Mode       string `json:"mode"`
	ProjectKey string `json:"project_key"`
	TopK       int    `json:"top_k"`
}

// turnHandler runs one conversation turn and streams the event frames
// back over the response body. Once streaming starts, failures are
// reported in-stream rather than via HTTP status.
func turnHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body turnBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if body.Message == "" {
			utils.JSONError(w, http.StatusBadRequest, "message is required")
			return
		}
		mode := retrieval.ScopeMode(body.Mode)
		switch mode {
		case "", retrieval.ModeGeneric, retrieval.ModeProject, retrieval.ModeHybrid:
		default:
			utils.JSONError(w, http.StatusBadRequest, "unknown mode")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		em := stream.NewEncoder(w)
		req := orchestrator.TurnRequest{
			AgentID:    body.Agent,
			Message:    body.Message,
			Mode:       mode,
			ProjectKey: body.ProjectKey,
			TopK:       body.TopK,
		}
		if err := d.Orchestrator.RunTurn(r.Context(), req, em); err != nil {
			if r.Context().Err() != nil {
				logger.Info("turn_aborted", "agent", body.Agent)
				return
			}
			logger.Warn("turn_transport_error", "agent", body.Agent, "err", err.Error())
		}
	}
}
