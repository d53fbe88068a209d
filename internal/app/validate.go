package app

import (
	"fmt"
	"time"

	"atelier/pkg/config"
	"atelier/pkg/retrieval"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, ATELIER_DB_PATH env, or server.db_path in config")
	}
	cfg := eff.Config

	if cfg.Retrieval.TopK < 0 || cfg.Retrieval.TopK > retrieval.MaxTopK {
		return fmt.Errorf("retrieval.top_k must be between 0 and %d", retrieval.MaxTopK)
	}
	if cfg.Retrieval.ProjectBias < 0 {
		return fmt.Errorf("retrieval.project_bias must not be negative")
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.APIKey != "" {
		return fmt.Errorf("llm.api_key is set but llm.base_url is empty")
	}
	if d := time.Duration(cfg.History.Debounce); d < 0 {
		return fmt.Errorf("history.debounce must not be negative")
	}
	if cfg.Retention.Enabled && time.Duration(cfg.Retention.MaxAge) <= 0 {
		return fmt.Errorf("retention.enabled requires retention.max_age")
	}
	return nil
}
