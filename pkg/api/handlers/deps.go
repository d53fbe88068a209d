package handlers

import (
	"atelier/pkg/agents"
	"atelier/pkg/export"
	"atelier/pkg/history"
	"atelier/pkg/imagegen"
	"atelier/pkg/orchestrator"
	"atelier/pkg/retrieval"
)

// Deps is the set of wired components shared by the HTTP handlers.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	History      *history.Store
	Agents       *agents.Registry
	Embedder     retrieval.Embedder
	Resolver     *retrieval.Resolver
	Exporter     *export.Exporter
	Images       *imagegen.Generator
	ImageDir     string

	// MaxUploadBytes bounds source uploads; zero means the default cap.
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 8 << 20

func (d Deps) uploadCap() int64 {
	if d.MaxUploadBytes > 0 {
		return d.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}
