package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"atelier/internal/retention"
	"atelier/pkg/agents"
	"atelier/pkg/config"
	"atelier/pkg/export"
	"atelier/pkg/history"
	"atelier/pkg/imagegen"
	"atelier/pkg/llm"
	"atelier/pkg/logger"
	"atelier/pkg/orchestrator"
	"atelier/pkg/retrieval"
	"atelier/pkg/state"
	"atelier/pkg/store"
)

const defaultHistoryDebounce = 600 * time.Millisecond

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	registry *agents.Registry
	history  *history.Store
	orch     *orchestrator.Orchestrator
	embedder retrieval.Embedder
	exporter *export.Exporter
	images   *imagegen.Generator

	srv *http.Server
}

// New initializes resources that do not require a running context (DB,
// store, personas, orchestrator wiring). It does not start background
// watchers or the HTTP server; call Run to start those and block until
// shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	if err := state.Init(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state layout: %w", err)
	}
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}
	cfg := eff.Config
	reg, err := agents.LoadRegistry(cfg.Personas.Dir)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}

	debounce := time.Duration(cfg.History.Debounce)
	if debounce <= 0 {
		debounce = defaultHistoryDebounce
	}
	hist := history.NewStore(debounce)

	var emb retrieval.Embedder
	if cfg.Retrieval.EmbedURL != "" {
		emb = retrieval.NewHTTPEmbedder(cfg.Retrieval.EmbedURL, cfg.Retrieval.EmbedModel)
	}

	bias := cfg.Retrieval.ProjectBias
	if bias == 0 {
		bias = retrieval.DefaultProjectBias
	}
	var resolver *retrieval.Resolver
	if emb != nil {
		resolver = retrieval.NewResolver(emb, retrieval.NewPebbleIndex(), bias)
	}

	var client llm.Client
	if cfg.LLM.BaseURL != "" {
		client = llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, time.Duration(cfg.LLM.Timeout))
	}

	var exp *export.Exporter
	if cfg.Exports.Dir != "" {
		exp, err = export.NewExporter(cfg.Exports.Dir)
		if err != nil {
			return nil, fmt.Errorf("exports: %w", err)
		}
	}
	var imgs *imagegen.Generator
	if cfg.Images.Dir != "" {
		imgs, err = imagegen.NewGenerator(cfg.Images.Dir, cfg.Images.APIBase, cfg.Images.APIKey)
		if err != nil {
			return nil, fmt.Errorf("images: %w", err)
		}
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		registry:  reg,
		history:   hist,
		embedder:  emb,
		exporter:  exp,
		images:    imgs,
		orch: &orchestrator.Orchestrator{
			History:  hist,
			Agents:   reg,
			Resolver: resolver,
			LLM:      client,
			Exporter: exp,
			Images:   imgs,
		},
	}
	return a, nil
}

// Run starts background workers and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cfg := a.eff.Config

	if cfg.Personas.Watch && cfg.Personas.Dir != "" {
		go func() {
			if err := a.registry.Watch(ctx); err != nil {
				logger.Warn("persona_watch_stopped", "error", err)
			}
		}()
	}

	var retDirs []string
	if a.exporter != nil {
		retDirs = append(retDirs, a.exporter.Dir())
	}
	if cfg.Images.Dir != "" {
		retDirs = append(retDirs, cfg.Images.Dir)
	}
	stopRetention, err := retention.Start(ctx, retention.Options{Retention: cfg.Retention, Dirs: retDirs})
	if err != nil {
		return err
	}
	defer stopRetention()

	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// shutdown flushes pending history writes and closes the store.
func (a *App) shutdown() {
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.srv != nil {
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
	}
	a.history.Close()
	if err := store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
}
