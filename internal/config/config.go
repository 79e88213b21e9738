package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for findash.
type Config struct {
	Server  Server              `yaml:"server"`
	Backend Backend             `yaml:"backend"`
	Chat    Chat                `yaml:"chat"`
	Storage Storage             `yaml:"storage"`
	Catalog Catalog             `yaml:"catalog"`
	Alpaca  Alpaca              `yaml:"alpaca"`
	Live    Live                `yaml:"live"`
	Logging Logging             `yaml:"logging"`
	Units   map[string]UnitRule `yaml:"units"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// Backend points at the remote analytics API and its revenue feed.
type Backend struct {
	BaseURL        string  `yaml:"base_url"`
	WSURL          string  `yaml:"ws_url"`
	Timeout        string  `yaml:"timeout"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
}

// TimeoutDuration parses Timeout, falling back to 30s.
func (b Backend) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(b.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Chat selects how chat questions are answered.
type Chat struct {
	Provider       string `yaml:"provider"` // "remote" or "llm"
	RequestsPerMin int    `yaml:"requests_per_min"`
	LLM            LLM    `yaml:"llm"`
}

// LLM configures an OpenAI-compatible chat model.
type LLM struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Storage holds persistence settings.
type Storage struct {
	DataDir string `yaml:"data_dir"`
	Driver  string `yaml:"driver"` // "sqlite" or "postgres"
	DSN     string `yaml:"dsn"`
}

// Catalog controls the metrics/industries cache.
type Catalog struct {
	RefreshCron string `yaml:"refresh_cron"`
}

// Alpaca holds credentials used to resolve company names.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Enabled reports whether Alpaca credentials are present.
func (a Alpaca) Enabled() bool { return a.APIKey != "" && a.APISecret != "" }

// Live configures the revenue feed window.
type Live struct {
	Window int `yaml:"window"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UnitRule describes how a metric is scaled for display.
type UnitRule struct {
	Scale  float64 `yaml:"scale"`
	Suffix string  `yaml:"suffix"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides and defaults, and validates the result. A
// missing file is not an error: the configuration is then built from the
// environment and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINDASH_API_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("FINDASH_WS_URL"); v != "" {
		cfg.Backend.WSURL = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Storage.DSN = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Chat.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Chat.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Chat.LLM.Model = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://127.0.0.1:8000/api"
	}
	if cfg.Backend.WSURL == "" {
		cfg.Backend.WSURL = "ws://127.0.0.1:8000/ws/revenue/"
	}
	if cfg.Backend.Timeout == "" {
		cfg.Backend.Timeout = "30s"
	}
	if cfg.Backend.RequestsPerSec == 0 {
		cfg.Backend.RequestsPerSec = 20
	}
	if cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = 10
	}
	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "remote"
	}
	if cfg.Chat.RequestsPerMin == 0 {
		cfg.Chat.RequestsPerMin = 30
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = cfg.Storage.DataDir + "/findash.db"
	}
	if cfg.Catalog.RefreshCron == "" {
		cfg.Catalog.RefreshCron = "0 0 */6 * * *"
	}
	if cfg.Live.Window == 0 {
		cfg.Live.Window = 12
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	switch c.Chat.Provider {
	case "remote":
	case "llm":
		if c.Chat.LLM.Model == "" {
			errs = append(errs, "chat.llm.model is required when chat.provider is llm")
		}
	default:
		errs = append(errs, fmt.Sprintf("chat.provider %q must be remote or llm", c.Chat.Provider))
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, "storage.dsn is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q must be sqlite or postgres", c.Storage.Driver))
	}
	if c.Live.Window < 1 {
		errs = append(errs, "live.window must be positive")
	}
	for name, rule := range c.Units {
		if rule.Scale <= 0 {
			errs = append(errs, fmt.Sprintf("units.%s.scale must be positive", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
