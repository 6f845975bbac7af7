// Package main implements the engined compute worker.
//
// This file contains the Worker type serving the stateless job endpoint the
// remote engine submits to: each request carries one key's training points,
// the dates to forecast, and the engine configuration; the response carries
// the forecast rows. Fitting happens per request, so the worker holds no
// state between jobs and can be scaled horizontally behind a plain load
// balancer.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/HatiCode/hyperprophet/cmd/engined/config"
	"github.com/HatiCode/hyperprophet/cmd/engined/metrics"
	"github.com/HatiCode/hyperprophet/pkg/dataset"
	"github.com/HatiCode/hyperprophet/pkg/engine"
	"github.com/HatiCode/hyperprophet/pkg/httpx"
)

// Worker computes forecast jobs with a local engine.
type Worker struct {
	engine     engine.Engine
	maxPoints  int
	jobTimeout time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewWorker creates a Worker around a local engine.
func NewWorker(cfg *config.Config, eng engine.Engine, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		engine:     eng,
		maxPoints:  cfg.MaxPoints,
		jobTimeout: cfg.JobTimeout,
		logger:     logger,
		metrics:    m,
	}
}

// HandleJob serves POST /v1/jobs.
func (w *Worker) HandleJob(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteErrorMessage(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req engine.JobRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(rw, http.StatusBadRequest, err)
		return
	}

	if req.Key == "" {
		httpx.WriteErrorMessage(rw, http.StatusBadRequest, "key is required")
		return
	}
	if len(req.Points) == 0 {
		httpx.WriteErrorMessage(rw, http.StatusBadRequest, "points must not be empty")
		return
	}
	if w.maxPoints > 0 && len(req.Points) > w.maxPoints {
		httpx.WriteErrorMessage(rw, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("too many points: %d > %d", len(req.Points), w.maxPoints))
		return
	}
	if len(req.Dates) == 0 {
		httpx.WriteErrorMessage(rw, http.StatusBadRequest, "dates must not be empty")
		return
	}

	rows, err := w.compute(r.Context(), req)
	if err != nil {
		w.logger.Error("job failed", "key", req.Key, "error", err)
		httpx.WriteError(rw, http.StatusUnprocessableEntity, err)
		return
	}

	if err := httpx.WriteJSON(rw, http.StatusOK, engine.JobResponse{Key: req.Key, Rows: rows}); err != nil {
		w.logger.Error("failed to write JSON response", "error", err)
	}
}

// decodeJSON decodes a request body, capping it at 32 MiB.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, 32<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// compute fits the job's series locally and forecasts the requested dates.
func (w *Worker) compute(ctx context.Context, req engine.JobRequest) ([]engine.ForecastRow, error) {
	start := time.Now()

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	series := dataset.Series{Key: req.Key, Points: req.Points}

	model, err := w.engine.Fit(ctx, series, req.Config)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordJob("fit_failed", time.Since(start).Seconds())
		}
		return nil, err
	}

	rows, err := w.engine.Predict(ctx, model, req.Dates)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordJob("predict_failed", time.Since(start).Seconds())
		}
		return nil, err
	}

	duration := time.Since(start)
	if w.metrics != nil {
		w.metrics.RecordJob("ok", duration.Seconds())
	}

	w.logger.Debug("job complete",
		"key", req.Key,
		"points", len(req.Points),
		"dates", len(req.Dates),
		"duration_ms", duration.Milliseconds(),
	)

	return rows, nil
}
