// Command engined implements the hyperprophet remote compute worker.
//
// engined serves the stateless job endpoint consumed by the remote engine:
// forecastd ships one key's training points and forecast dates per request
// and receives the forecast rows back. Because no state survives a request,
// engined instances can be scaled out freely.
//
// It serves an HTTP API on port 8082 (configurable) providing:
//   - POST /v1/jobs - Compute one forecast job
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	engined -engine=seasonal -listen=:8082
//
// Environment variables:
//
//	LISTEN      - HTTP listen address (default :8082)
//	ENGINE      - Compute engine: zero or seasonal (default seasonal)
//	MAX_POINTS  - Max training points per job (default 100000)
//	JOB_TIMEOUT - Per-job compute timeout (default 30s)
//	LOG_LEVEL   - Logging level: debug, info, warn, error
//	LOG_FORMAT  - Logging format: text, json
package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/hyperprophet/cmd/engined/config"
	"github.com/HatiCode/hyperprophet/cmd/engined/metrics"
	"github.com/HatiCode/hyperprophet/pkg/engine"
	"github.com/HatiCode/hyperprophet/pkg/httpx"
)

func newLogger(level, format string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	log.Info("starting hyperprophet engined",
		"version", version,
		"engine", cfg.Engine,
		"listen", cfg.Listen,
	)

	var eng engine.Engine
	switch cfg.Engine {
	case "zero":
		eng = engine.NewZeroEngine()
	default:
		eng = engine.NewSeasonalEngine()
	}

	worker := NewWorker(cfg, eng, log, metrics.New(cfg.Engine))

	mux := http.NewServeMux()
	mux.Handle("/healthz", httpx.HealthHandler())
	mux.HandleFunc("/v1/jobs", worker.HandleJob)
	mux.Handle("/metrics", promhttp.Handler())

	handler := httpx.LoggingMiddleware(log)(httpx.RecoveryMiddleware(log)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

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
	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}
