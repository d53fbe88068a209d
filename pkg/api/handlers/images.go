package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"atelier/pkg/imagegen"
	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterImages registers the direct image generation route. The same
// generator backs the model-invoked tool; this endpoint lets clients
// generate without spending a turn.
func RegisterImages(r *mux.Router, d Deps) {
	if d.Images == nil {
		return
	}
	r.HandleFunc("/tools/generate_image", generateImage(d)).Methods(http.MethodPost)
}

type imageBody struct {
	Prompt     string `json:"prompt"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Count      int    `json:"count"`
	ProjectKey string `json:"project_key"`
}

func generateImage(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body imageBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			utils.JSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		res, err := d.Images.Generate(r.Context(), body.Prompt, imagegen.Options{
			Width:      body.Width,
			Height:     body.Height,
			Count:      body.Count,
			ProjectKey: body.ProjectKey,
		})
		if err != nil {
			utils.JSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusCreated, res)
	}
}
