package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"tradelab/internal/api"
	"tradelab/internal/config"
	"tradelab/internal/engine"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
	"tradelab/internal/strategy/builtins"
	"tradelab/internal/util"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	registry, err := newRegistry(cfg.Strategies)
	if err != nil {
		log.Fatalf("registering strategies: %v", err)
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	bt := engine.NewBacktester(bars, registry,
		engine.WithRunStore(runs),
		engine.WithDefaultMarket(cfg.Backtest.Market),
		engine.WithMaxPositionPct(cfg.Backtest.MaxPositionPct),
		engine.WithBacktestLogger(logger),
	)
	srv := api.NewServer(cfg.Server, bt, bars,
		api.WithRunStore(runs),
		api.WithMarket(cfg.Backtest.Market),
		api.WithDefaultCash(cfg.Backtest.StartingCash),
		api.WithLogger(logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting tradelab-server",
		"http", srv.HTTPAddr(),
		"grpc", srv.GRPCAddr(),
		"dataDir", cfg.Storage.DataDir,
		"strategies", registry.List(),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		cancel()
		runs.Close()
		log.Fatalf("server: %v", err)
	}
}

// newRegistry returns the built-in strategies plus the configured presets.
func newRegistry(presets []config.StrategyConfig) (*strategy.Registry, error) {
	r := builtins.NewRegistry()
	for _, p := range presets {
		if p.Base == "" {
			continue
		}
		if err := builtins.RegisterPreset(r, p.Name, p.Base, p.Params); err != nil {
			return nil, err
		}
	}
	return r, nil
}
