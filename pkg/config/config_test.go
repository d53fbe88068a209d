package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("server:\n  address: 127.0.0.1\n  port: 9090\n  db_path: /tmp/db\nhistory:\n  debounce: 250ms\ningest:\n  max_upload_bytes: 2MiB\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Addr(); got != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", got)
	}
	if time.Duration(cfg.History.Debounce) != 250*time.Millisecond {
		t.Fatalf("debounce = %v", cfg.History.Debounce)
	}
	if int64(cfg.Ingest.MaxUploadBytes) != 2<<20 {
		t.Fatalf("max upload = %d", cfg.Ingest.MaxUploadBytes)
	}
}

func TestAddrDefaults(t *testing.T) {
	var cfg Config
	if got := cfg.Addr(); got != "0.0.0.0:8080" {
		t.Fatalf("addr = %q", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ATELIER_ADDR", "10.0.0.5:9000")
	t.Setenv("ATELIER_LLM_MODEL", "gpt-test")
	t.Setenv("ATELIER_RATE_RPS", "12.5")

	env := ParseConfigEnvs()
	if env.Server.Address != "10.0.0.5" || env.Server.Port != 9000 {
		t.Fatalf("addr = %s:%d", env.Server.Address, env.Server.Port)
	}
	if env.LLM.Model != "gpt-test" {
		t.Fatalf("model = %q", env.LLM.Model)
	}
	if env.Security.RateLimit.RPS != 12.5 {
		t.Fatalf("rps = %v", env.Security.RateLimit.RPS)
	}
}

func TestEnvDoesNotBeatFile(t *testing.T) {
	t.Setenv("ATELIER_LLM_MODEL", "from-env")
	cfg := &Config{}
	cfg.LLM.Model = "from-file"
	mergeEnv(cfg, ParseConfigEnvs())
	if cfg.LLM.Model != "from-file" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
}
