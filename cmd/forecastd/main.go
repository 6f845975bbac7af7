// Command forecastd implements the hyperprophet batch forecasting service.
//
// forecastd partitions long-format (key, ds, y) tables into independent
// per-key series, fits and forecasts them concurrently against the
// configured engine, and serves the merged per-key forecasts.
//
// It serves an HTTP API on port 8081 (configurable) providing:
//   - POST /v1/forecast - Run a forecast batch on a posted table
//   - GET /v1/forecast/latest?dataset=<name> - Retrieve the latest snapshot
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// With a data source configured, forecastd additionally runs a periodic
// loop: every interval it collects the trailing window of observations from
// the source, forecasts them, and replaces the stored snapshot.
//
// Usage:
//
//	forecastd \
//	  -engine=seasonal \
//	  -weekly-seasonality \
//	  -dataset=orders \
//	  -source=prometheus \
//	  -periods=30
//
// Environment variables:
//
//	LISTEN             - HTTP listen address (default :8081)
//	ENGINE             - Forecast engine: zero, seasonal, remote
//	ENGINE_URL         - Remote engine URL (when ENGINE=remote)
//	DATASET            - Dataset name for stored snapshots
//	PERIODS            - Forecast steps past each key's training maximum
//	FREQ               - Forecast step size (0 infers from training data)
//	SOURCE             - Data source kind: prometheus or http
//	SOURCE_*           - Source configuration (e.g. SOURCE_QUERY, SOURCE_URL)
//	STORAGE            - Snapshot storage: memory or redis
//	REDIS_ADDR         - Redis server address
//	WINDOW             - Historical window for the forecast loop
//	INTERVAL           - Forecast loop interval (default 5m)
//	LOG_LEVEL          - Logging level: debug, info, warn, error
//	LOG_FORMAT         - Logging format: text, json
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/hyperprophet/cmd/forecastd/config"
	"github.com/HatiCode/hyperprophet/cmd/forecastd/engines"
	"github.com/HatiCode/hyperprophet/cmd/forecastd/logger"
	"github.com/HatiCode/hyperprophet/cmd/forecastd/metrics"
	"github.com/HatiCode/hyperprophet/cmd/forecastd/router"
	"github.com/HatiCode/hyperprophet/pkg/httpx"
	"github.com/HatiCode/hyperprophet/pkg/source"
	"github.com/HatiCode/hyperprophet/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	log.Info("starting hyperprophet forecastd",
		"version", version,
		"engine", cfg.Engine,
		"dataset", cfg.Dataset,
	)

	eng, err := engines.New(cfg, log)
	if err != nil {
		log.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var store storage.Store
	var health http.HandlerFunc
	switch cfg.Storage {
	case "redis":
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
		store = redisStore
		health = httpx.HealthHandlerWithCheck(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisStore.Ping(ctx)
		})
	default:
		store = storage.NewMemoryStore()
	}

	var src source.Source
	if cfg.Source != "" {
		src, err = source.New(cfg.Source, cfg.SourceConfig, int(cfg.Step.Seconds()))
		if err != nil {
			log.Error("failed to create source", "error", err)
			os.Exit(1)
		}
	}

	svc := NewService(cfg, eng, src, store, log, metrics.New(cfg.Dataset))

	staleAfter := 2 * cfg.Interval // snapshots older than two loop intervals are flagged stale
	handler := router.SetupRoutes(svc.HandleForecast, svc.HandleLatest(staleAfter), health, log)
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if src != nil {
		go func() {
			if err := svc.Run(ctx); err != nil && err != context.Canceled {
				log.Error("forecast loop failed", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}
