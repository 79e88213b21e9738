package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var overrideVars = []string{
	"FINDASH_API_BASE_URL", "FINDASH_WS_URL", "DATA_DIR", "DB_DRIVER", "DB_DSN",
	"LOG_LEVEL", "CHAT_PROVIDER", "OPENAI_BASE_URL", "OPENAI_API_KEY", "OPENAI_MODEL",
	"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
}

// clearEnv blanks every override variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideVars {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "findash-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 8088
  grpc_port: 9099
backend:
  base_url: "http://analytics.local/api"
  ws_url: "ws://analytics.local/ws/revenue/"
  timeout: "5s"
chat:
  provider: "llm"
  requests_per_min: 12
  llm:
    base_url: "https://llm.local/v1"
    model: "gpt-4o-mini"
storage:
  data_dir: "/tmp/findash/data"
  driver: "sqlite"
  dsn: "/tmp/findash/findash.db"
catalog:
  refresh_cron: "0 */30 * * * *"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
live:
  window: 24
logging:
  level: "debug"
  format: "text"
units:
  TotalRevenue:
    scale: 1000000000
    suffix: "B"
  EarningsPerShare:
    scale: 1
    suffix: "$"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:8088" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:8088")
	}
	if cfg.Server.GRPCAddr() != "127.0.0.1:9099" {
		t.Errorf("Server.GRPCAddr() = %q, want %q", cfg.Server.GRPCAddr(), "127.0.0.1:9099")
	}
	if cfg.Backend.BaseURL != "http://analytics.local/api" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://analytics.local/api")
	}
	if cfg.Backend.TimeoutDuration() != 5*time.Second {
		t.Errorf("Backend.TimeoutDuration() = %v, want %v", cfg.Backend.TimeoutDuration(), 5*time.Second)
	}
	if cfg.Chat.Provider != "llm" || cfg.Chat.LLM.Model != "gpt-4o-mini" {
		t.Errorf("Chat = %+v, want llm provider with gpt-4o-mini", cfg.Chat)
	}
	if cfg.Chat.RequestsPerMin != 12 {
		t.Errorf("Chat.RequestsPerMin = %d, want %d", cfg.Chat.RequestsPerMin, 12)
	}
	if cfg.Storage.DSN != "/tmp/findash/findash.db" {
		t.Errorf("Storage.DSN = %q, want %q", cfg.Storage.DSN, "/tmp/findash/findash.db")
	}
	if cfg.Catalog.RefreshCron != "0 */30 * * * *" {
		t.Errorf("Catalog.RefreshCron = %q, want %q", cfg.Catalog.RefreshCron, "0 */30 * * * *")
	}
	if !cfg.Alpaca.Enabled() {
		t.Error("Alpaca.Enabled() = false, want true")
	}
	if cfg.Live.Window != 24 {
		t.Errorf("Live.Window = %d, want %d", cfg.Live.Window, 24)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
	if r := cfg.Units["TotalRevenue"]; r.Scale != 1e9 || r.Suffix != "B" {
		t.Errorf("Units[TotalRevenue] = %+v, want 1e9/B", r)
	}
	if r := cfg.Units["EarningsPerShare"]; r.Scale != 1 || r.Suffix != "$" {
		t.Errorf("Units[EarningsPerShare] = %+v, want 1/$", r)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Backend.WSURL != "ws://127.0.0.1:8000/ws/revenue/" {
		t.Errorf("Backend.WSURL = %q, want default", cfg.Backend.WSURL)
	}
	if cfg.Chat.Provider != "remote" {
		t.Errorf("Chat.Provider = %q, want %q", cfg.Chat.Provider, "remote")
	}
	if cfg.Storage.DSN != "data/findash.db" {
		t.Errorf("Storage.DSN = %q, want %q", cfg.Storage.DSN, "data/findash.db")
	}
	if cfg.Live.Window != 12 {
		t.Errorf("Live.Window = %d, want %d", cfg.Live.Window, 12)
	}
	if cfg.Alpaca.Enabled() {
		t.Error("Alpaca.Enabled() = true, want false without credentials")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
backend:
  base_url: "http://yaml/api"
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("FINDASH_API_BASE_URL", "http://env/api")
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("DATA_DIR", "/env/data")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Backend.BaseURL != "http://env/api" {
		t.Errorf("Backend.BaseURL = %q, want %q (env override)", cfg.Backend.BaseURL, "http://env/api")
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Storage.DSN != "/env/data/findash.db" {
		t.Errorf("Storage.DSN = %q, want %q", cfg.Storage.DSN, "/env/data/findash.db")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
chat:
  provider: "llm"
storage:
  driver: "mysql"
units:
  Broken:
    scale: 0
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"chat.llm.model", "storage.driver", "units.Broken.scale"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
