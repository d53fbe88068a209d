package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged startup configuration along with
// where the listen address and database path came from.
type EffectiveConfigResult struct {
	Config     *Config
	Addr       string
	DBPath     string
	AddrSource string // "flags", "config", or "env"
	DBSource   string
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", "0.0.0.0:8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: set}
}

// ParseConfigEnvs builds a Config holding only values present in the
// ATELIER_* environment.
func ParseConfigEnvs() *Config {
	cfg := &Config{}
	if v := os.Getenv("ATELIER_ADDR"); v != "" {
		host, port := splitAddr(v)
		cfg.Server.Address = host
		cfg.Server.Port = port
	}
	if v := os.Getenv("ATELIER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("ATELIER_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("ATELIER_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Security.CORS.AllowedOrigins = append(cfg.Security.CORS.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("ATELIER_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("ATELIER_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("ATELIER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ATELIER_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("ATELIER_EMBED_URL"); v != "" {
		cfg.Retrieval.EmbedURL = v
	}
	if v := os.Getenv("ATELIER_EMBED_MODEL"); v != "" {
		cfg.Retrieval.EmbedModel = v
	}
	if v := os.Getenv("ATELIER_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("ATELIER_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ATELIER_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ATELIER_IMAGE_API_BASE"); v != "" {
		cfg.Images.APIBase = v
	}
	if v := os.Getenv("ATELIER_IMAGE_API_KEY"); v != "" {
		cfg.Images.APIKey = v
	}
	if v := os.Getenv("ATELIER_IMAGE_DIR"); v != "" {
		cfg.Images.Dir = v
	}
	if v := os.Getenv("ATELIER_EXPORT_DIR"); v != "" {
		cfg.Exports.Dir = v
	}
	if v := os.Getenv("ATELIER_PERSONA_DIR"); v != "" {
		cfg.Personas.Dir = v
	}
	if v := os.Getenv("ATELIER_HISTORY_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.History.Debounce = Duration(d)
		}
	}
	return cfg
}

// LoadEffectiveConfig merges the YAML file, environment and flags.
// Flags beat config file values, which beat environment values.
func LoadEffectiveConfig(flags Flags) (EffectiveConfigResult, error) {
	res := EffectiveConfigResult{}

	path := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(path)
	if err != nil {
		// A missing default config file is fine; an explicit one is not.
		if !os.IsNotExist(err) || flags.Set["config"] {
			return res, err
		}
		cfg = &Config{}
	}
	mergeEnv(cfg, ParseConfigEnvs())
	res.Config = cfg

	res.Addr, res.AddrSource = cfg.Addr(), "config"
	if os.Getenv("ATELIER_ADDR") != "" || os.Getenv("ATELIER_PORT") != "" {
		res.AddrSource = "env"
	}
	if flags.Set["addr"] {
		res.Addr, res.AddrSource = flags.Addr, "flags"
		host, port := splitAddr(flags.Addr)
		cfg.Server.Address = host
		cfg.Server.Port = port
	}

	res.DBPath, res.DBSource = cfg.Server.DBPath, "config"
	if os.Getenv("ATELIER_DB_PATH") != "" {
		res.DBSource = "env"
	}
	if res.DBPath == "" || flags.Set["db"] {
		res.DBPath, res.DBSource = flags.DB, "flags"
		cfg.Server.DBPath = flags.DB
	}

	return res, nil
}

// mergeEnv copies env values over fields the config file left empty.
func mergeEnv(cfg, env *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = env.Server.Address
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = env.Server.Port
	}
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = env.Server.DBPath
	}
	if len(cfg.Security.CORS.AllowedOrigins) == 0 {
		cfg.Security.CORS.AllowedOrigins = env.Security.CORS.AllowedOrigins
	}
	if cfg.Security.RateLimit.RPS == 0 {
		cfg.Security.RateLimit.RPS = env.Security.RateLimit.RPS
	}
	if cfg.Security.RateLimit.Burst == 0 {
		cfg.Security.RateLimit.Burst = env.Security.RateLimit.Burst
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = env.Logging.Level
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = env.Retrieval.TopK
	}
	if cfg.Retrieval.EmbedURL == "" {
		cfg.Retrieval.EmbedURL = env.Retrieval.EmbedURL
	}
	if cfg.Retrieval.EmbedModel == "" {
		cfg.Retrieval.EmbedModel = env.Retrieval.EmbedModel
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = env.LLM.BaseURL
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = env.LLM.APIKey
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = env.LLM.Model
	}
	if cfg.Images.APIBase == "" {
		cfg.Images.APIBase = env.Images.APIBase
	}
	if cfg.Images.APIKey == "" {
		cfg.Images.APIKey = env.Images.APIKey
	}
	if cfg.Images.Dir == "" {
		cfg.Images.Dir = env.Images.Dir
	}
	if cfg.Exports.Dir == "" {
		cfg.Exports.Dir = env.Exports.Dir
	}
	if cfg.Personas.Dir == "" {
		cfg.Personas.Dir = env.Personas.Dir
	}
	if cfg.History.Debounce == 0 {
		cfg.History.Debounce = env.History.Debounce
	}
}

func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, p
}
