// Package router configures the HTTP routes of forecastd.
//
// Routes configured:
//   - POST /v1/forecast        - Run a forecast batch on a posted table
//   - GET  /v1/forecast/latest - Retrieve the stored snapshot of a dataset
//   - GET  /healthz            - Health check endpoint (503 when the
//     storage backend is unreachable)
//   - GET  /metrics            - Prometheus metrics endpoint
//
// Snapshots older than the stale threshold are served with an
// X-Hyperprophet-Stale header so callers can decide whether to trust them.
package router

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/hyperprophet/pkg/httpx"
)

// SetupRoutes wires the service handlers into a ServeMux with logging and
// panic recovery applied to every route. A nil health handler serves a
// plain 200 OK.
func SetupRoutes(forecast, latest, health http.HandlerFunc, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if health == nil {
		health = httpx.HealthHandler()
	}
	mux.Handle("/healthz", health)
	mux.HandleFunc("/v1/forecast", forecast)
	mux.HandleFunc("/v1/forecast/latest", latest)
	mux.Handle("/metrics", promhttp.Handler())

	chain := httpx.RecoveryMiddleware(logger)(mux)
	return httpx.LoggingMiddleware(logger)(chain)
}
