package main

import (
	"fmt"
	"io"
	"log/slog"

	"tradelab/internal/config"
	"tradelab/internal/engine"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
	"tradelab/internal/strategy/builtins"
	"tradelab/internal/util"
)

// app holds the configuration and stores shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	out      io.Writer
	bars     *store.ParquetStore
	registry *strategy.Registry
	runStore *store.SQLiteStore
}

func newApp(out io.Writer) (*app, error) {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	registry, err := newRegistry(cfg.Strategies)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		log:      logger,
		out:      out,
		bars:     store.NewParquetStore(cfg.Storage.DataDir),
		registry: registry,
	}, nil
}

// newRegistry returns the built-in strategies plus the configured presets.
func newRegistry(presets []config.StrategyConfig) (*strategy.Registry, error) {
	r := builtins.NewRegistry()
	for _, p := range presets {
		if p.Base == "" {
			continue
		}
		if err := builtins.RegisterPreset(r, p.Name, p.Base, p.Params); err != nil {
			return nil, fmt.Errorf("strategy preset %q: %w", p.Name, err)
		}
	}
	return r, nil
}

// openRuns opens the run database on first use.
func (a *app) openRuns() (*store.SQLiteStore, error) {
	if a.runStore != nil {
		return a.runStore, nil
	}
	rs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	a.runStore = rs
	return rs, nil
}

func (a *app) backtester(runs store.RunStore) *engine.Backtester {
	opts := []engine.BacktesterOption{
		engine.WithDefaultMarket(a.cfg.Backtest.Market),
		engine.WithMaxPositionPct(a.cfg.Backtest.MaxPositionPct),
		engine.WithBacktestLogger(a.log),
	}
	if runs != nil {
		opts = append(opts, engine.WithRunStore(runs))
	}
	return engine.NewBacktester(a.bars, a.registry, opts...)
}

func (a *app) close() {
	if a.runStore != nil {
		if err := a.runStore.Close(); err != nil {
			a.log.Warn("closing run store", "error", err)
		}
	}
}
