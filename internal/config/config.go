package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when TRADELAB_CONFIG is unset.
const DefaultPath = "config/tradelab.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tradelab.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Gather     GatherConfig     `yaml:"gather"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls historical data ingestion.
type GatherConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
}

// BacktestConfig holds defaults applied to backtest requests.
type BacktestConfig struct {
	Market         string         `yaml:"market"`
	StartingCash   float64        `yaml:"starting_cash"`
	MaxPositionPct float64        `yaml:"max_position_pct"`
	Default        StrategyConfig `yaml:"default_strategy"`
}

// StrategyConfig names a strategy and its parameters. When Base is set the
// entry registers a preset of that built-in strategy under Name.
type StrategyConfig struct {
	Name   string         `yaml:"name"`
	Base   string         `yaml:"base"`
	Params map[string]any `yaml:"params"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/tradelab.db",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Alpaca: Alpaca{
			BaseURL: "https://paper-api.alpaca.markets",
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Gather: GatherConfig{
			StartDate:       "2020-01-01",
			BatchSize:       100,
			MaxWorkers:      4,
			RateLimitPerMin: 200,
			MaxRetries:      3,
		},
		Backtest: BacktestConfig{
			Market:       "us",
			StartingCash: 100_000,
			Default:      StrategyConfig{Name: "sma-cross"},
		},
	}
}

// Path returns the config file path from TRADELAB_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("TRADELAB_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path over Default(),
// and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default() plus
// environment overrides when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	cfg = Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("TRADELAB_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRADELAB_HTTP_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("TRADELAB_GRPC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRADELAB_GRPC_PORT: %w", err)
		}
		cfg.Server.GRPCPort = port
	}

	// Canonical Alpaca SDK variables win over everything else.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}
