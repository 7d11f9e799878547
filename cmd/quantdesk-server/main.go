package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quantdesk/internal/api"
	"quantdesk/internal/backtest"
	"quantdesk/internal/config"
	"quantdesk/internal/domain"
	"quantdesk/internal/heatmap"
	"quantdesk/internal/marketdata"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy/builtins"
	"quantdesk/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default $QUANTDESK_CONFIG or config/quantdesk.yaml)")
	flag.Parse()

	cfg, err := config.LoadDefault(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	logger := util.NewLoggerTo(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	var cache store.BarCache
	if cfg.Backtest.CachingBars() {
		cache = store.NewParquetStore(cfg.Storage.DataDir)
	}

	provider := marketdata.NewFactory(
		domain.Credentials{APIKey: cfg.Alpaca.APIKey, APISecret: cfg.Alpaca.APISecret},
		marketdata.AlpacaOptions{
			DataURL:        cfg.Alpaca.DataURL,
			BaseURL:        cfg.Alpaca.BaseURL,
			Feed:           cfg.Alpaca.Feed,
			RetryAttempts:  cfg.Retry.MaxAttempts,
			RetryBaseDelay: cfg.Retry.BaseDelay,
		},
		util.NewRateLimiter(cfg.Alpaca.RateLimitPerMin),
		cache,
	)

	registry := builtins.NewRegistry()
	opts := []backtest.Option{backtest.WithLogger(logger)}

	var runs store.RunLog
	if cfg.Backtest.RecordingRuns() {
		sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening run log: %w", err)
		}
		defer sqlite.Close()
		runs = sqlite
		opts = append(opts, backtest.WithRunLog(sqlite))
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Backtester: backtest.NewBacktester(provider, registry, util.NewTradingCalendar(), opts...),
		Aggregator: heatmap.NewAggregator(cfg.Heatmap.BatchSize, logger),
		Provider:   provider,
		Strategies: registry,
		Runs:       runs,
		Log:        logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("quantdesk-server starting",
		"http", cfg.Server.Addr(),
		"grpc", cfg.Server.GRPCAddr(),
		"default_credentials", cfg.Alpaca.APIKey != "",
		"cache_bars", cache != nil,
		"record_runs", runs != nil,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info("quantdesk-server stopped")
	return nil
}
