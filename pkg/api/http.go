package api

import (
	"net/http"

	"atelier/pkg/api/handlers"

	"github.com/gorilla/mux"
)

// Deps carries the wired components handlers need. Fields left nil
// disable the routes that depend on them.
type Deps = handlers.Deps

// Handler returns the versioned API router.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterTurn(v1, d)
	handlers.RegisterHistory(v1, d)
	handlers.RegisterAgents(v1, d)
	handlers.RegisterSources(v1, d)
	handlers.RegisterProjects(v1, d)
	handlers.RegisterExports(v1, d)
	handlers.RegisterImages(v1, d)
	handlers.RegisterRetrieve(v1, d)

	// generated artifacts served straight from disk
	if d.Exporter != nil {
		r.PathPrefix("/downloads/").Handler(handlers.Downloads(d))
	}
	if d.ImageDir != "" {
		r.PathPrefix("/v1/images/").Handler(
			http.StripPrefix("/v1/images/", http.FileServer(http.Dir(d.ImageDir))))
	}

	return r
}
