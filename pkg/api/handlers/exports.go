package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"atelier/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterExports registers the direct document export routes. The same
// renderers back the model-invoked export tools; these endpoints let
// clients export without spending a turn.
func RegisterExports(r *mux.Router, d Deps) {
	if d.Exporter == nil {
		return
	}
	r.HandleFunc("/tools/export_pdf", exportDoc(d, "pdf")).Methods(http.MethodPost)
	r.HandleFunc("/tools/export_docx", exportDoc(d, "docx")).Methods(http.MethodPost)
}

type exportBody struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func exportDoc(d Deps, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body exportBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		var name string
		var err error
		if kind == "pdf" {
			name, err = d.Exporter.ExportPDF(body.Title, body.Content)
		} else {
			name, err = d.Exporter.ExportDOCX(body.Title, body.Content)
		}
		if err != nil {
			utils.JSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		utils.JSONWrite(w, http.StatusCreated, struct {
			Filename    string `json:"filename"`
			DownloadURL string `json:"download_url"`
		}{Filename: name, DownloadURL: "/downloads/" + name})
	}
}

// Downloads serves exported documents by sanitized filename only.
func Downloads(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/downloads/")
		path, err := d.Exporter.Resolve(name)
		if err != nil {
			utils.JSONError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		http.ServeFile(w, r, path)
	})
}
