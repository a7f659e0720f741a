package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every variable applyEnvOverrides consults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL", "ALPACA_DATA_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"TRADELAB_HTTP_PORT", "TRADELAB_GRPC_PORT", "TRADELAB_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradelab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/tradelab/data"
  sqlite_path: "/tmp/tradelab/tradelab.db"
server:
  host: "127.0.0.1"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
logging:
  level: "debug"
  format: "json"
gather:
  start_date: "2021-01-04"
  batch_size: 50
  max_workers: 2
  rate_limit_per_min: 120
backtest:
  market: "us"
  starting_cash: 25000
  max_position_pct: 0.25
  default_strategy:
    name: "buy-and-hold"
    params:
      symbol: "SPY"
      qty: 10
strategies:
  - name: "aapl-fast"
    base: "sma-cross"
    params:
      symbol: "AAPL"
      short_window: 5
      long_window: 20
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/tradelab/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tradelab/data")
	}
	if cfg.Server.Port != 8081 || cfg.Server.GRPCPort != 9091 {
		t.Errorf("Server ports = %d/%d, want 8081/9091", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca = %+v, want key test-key and feed sip", cfg.Alpaca)
	}
	// Unset keys keep their defaults.
	if cfg.Alpaca.DataURL != "https://data.alpaca.markets" {
		t.Errorf("Alpaca.DataURL = %q, want default", cfg.Alpaca.DataURL)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if cfg.Gather.BatchSize != 50 || cfg.Gather.MaxRetries != 3 {
		t.Errorf("Gather = %+v, want batch 50 and default retries 3", cfg.Gather)
	}
	if cfg.Backtest.StartingCash != 25000 || cfg.Backtest.MaxPositionPct != 0.25 {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if cfg.Backtest.Default.Name != "buy-and-hold" || cfg.Backtest.Default.Params["symbol"] != "SPY" {
		t.Errorf("Backtest.Default = %+v", cfg.Backtest.Default)
	}
	if len(cfg.Strategies) != 1 || cfg.Strategies[0].Base != "sma-cross" {
		t.Fatalf("Strategies = %+v, want one sma-cross preset", cfg.Strategies)
	}
	if cfg.Strategies[0].Params["short_window"] != 5 {
		t.Errorf("short_window = %v, want 5", cfg.Strategies[0].Params["short_window"])
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("TRADELAB_HTTP_PORT", "18080")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Server.Port != 18080 {
		t.Errorf("Server.Port = %d, want 18080", cfg.Server.Port)
	}

	t.Setenv("APCA_API_KEY_ID", "sdk-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "sdk-key" {
		t.Errorf("Alpaca.APIKey = %q, want APCA_API_KEY_ID to win", cfg.Alpaca.APIKey)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRADELAB_GRPC_PORT", "ninety")

	if _, err := Load(writeConfig(t, "server: {}\n")); err == nil {
		t.Fatal("Load() should fail on a non-numeric TRADELAB_GRPC_PORT")
	}
}

func TestLoadOrDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLITE_PATH", "/env/runs.db")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("Storage.DataDir = %q, want default %q", cfg.Storage.DataDir, "data")
	}
	if cfg.Storage.SQLitePath != "/env/runs.db" {
		t.Errorf("Storage.SQLitePath = %q, want env override", cfg.Storage.SQLitePath)
	}

	if _, err := LoadOrDefault(writeConfig(t, "server: [")); err == nil {
		t.Error("LoadOrDefault() should surface parse errors")
	}
}

func TestPath(t *testing.T) {
	clearEnv(t)
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("TRADELAB_CONFIG", "/etc/tradelab.yaml")
	if got := Path(); got != "/etc/tradelab.yaml" {
		t.Errorf("Path() = %q, want TRADELAB_CONFIG", got)
	}
}
