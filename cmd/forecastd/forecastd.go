// Package main implements the forecastd batch orchestration service.
//
// This file contains the Service type, which serves two paths into the same
// pipeline:
//
//	partition → fit (concurrent per key) → build future → predict → store
//
// The synchronous path is HandleForecast, serving POST /v1/forecast: the
// caller ships a long-format table and receives the merged forecast table in
// the response, with the snapshot stored for later retrieval.
//
// The periodic path is Run, enabled when a data source is configured: every
// interval, Tick collects the trailing window from the source, forecasts it,
// and replaces the stored snapshot that GET /v1/forecast/latest serves.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/HatiCode/hyperprophet/cmd/forecastd/config"
	"github.com/HatiCode/hyperprophet/cmd/forecastd/metrics"
	"github.com/HatiCode/hyperprophet/pkg/dataset"
	"github.com/HatiCode/hyperprophet/pkg/engine"
	"github.com/HatiCode/hyperprophet/pkg/forecast"
	"github.com/HatiCode/hyperprophet/pkg/httpx"
	"github.com/HatiCode/hyperprophet/pkg/source"
	"github.com/HatiCode/hyperprophet/pkg/storage"
)

// Service owns the engine, storage, and batch defaults shared by the HTTP
// handler and the forecast loop.
type Service struct {
	cfg     *config.Config
	engine  engine.Engine
	source  source.Source
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service. The source may be nil, which disables Run.
func NewService(
	cfg *config.Config,
	eng engine.Engine,
	src source.Source,
	store storage.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:     cfg,
		engine:  eng,
		source:  src,
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// ForecastRequest is the body of POST /v1/forecast.
type ForecastRequest struct {
	// Dataset names the snapshot written for this batch. Defaults to the
	// service's configured dataset.
	Dataset string `json:"dataset,omitempty"`

	// Rows is the long-format training table.
	Rows []dataset.Observation `json:"rows"`

	// Config overrides the service's engine configuration for this batch.
	Config *engine.Config `json:"config,omitempty"`

	Periods        *int  `json:"periods,omitempty"`
	FreqSeconds    *int  `json:"freqSeconds,omitempty"`
	IncludeHistory *bool `json:"includeHistory,omitempty"`

	// FitPolicy and PredictPolicy override the failure policies for this
	// batch: "raise" or "skip".
	FitPolicy     string `json:"fitPolicy,omitempty"`
	PredictPolicy string `json:"predictPolicy,omitempty"`
}

// ForecastResponse is the body of a successful POST /v1/forecast call and of
// GET /v1/forecast/latest.
type ForecastResponse struct {
	Dataset     string               `json:"dataset"`
	Engine      string               `json:"engine"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Keys        []string             `json:"keys"`
	Rows        []engine.ForecastRow `json:"rows"`
	Failures    []storage.KeyFailure `json:"failures,omitempty"`
}

// batchParams are the resolved settings of one batch run.
type batchParams struct {
	dataset        string
	engineCfg      engine.Config
	periods        int
	freq           time.Duration
	includeHistory bool
	fitPolicy      forecast.ErrorPolicy
	predictPolicy  forecast.ErrorPolicy
}

// defaultParams resolves the service configuration into batch parameters.
func (s *Service) defaultParams() batchParams {
	return batchParams{
		dataset: s.cfg.Dataset,
		engineCfg: engine.Config{
			YearlySeasonality: s.cfg.Yearly,
			WeeklySeasonality: s.cfg.Weekly,
			DailySeasonality:  s.cfg.Daily,
			IntervalWidth:     s.cfg.IntervalWidth,
		},
		periods:        s.cfg.Periods,
		freq:           s.cfg.Freq,
		includeHistory: s.cfg.IncludeHistory,
		fitPolicy:      parsePolicy(s.cfg.FitPolicy, forecast.ErrorPolicyRaise),
		predictPolicy:  parsePolicy(s.cfg.PredictPolicy, forecast.ErrorPolicySkip),
	}
}

func parsePolicy(name string, fallback forecast.ErrorPolicy) forecast.ErrorPolicy {
	switch name {
	case "raise":
		return forecast.ErrorPolicyRaise
	case "skip":
		return forecast.ErrorPolicySkip
	default:
		return fallback
	}
}

// HandleForecast serves POST /v1/forecast.
func (s *Service) HandleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ForecastRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Rows) == 0 {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "rows must not be empty")
		return
	}

	params := s.defaultParams()
	if req.Dataset != "" {
		params.dataset = req.Dataset
	}
	if req.Config != nil {
		params.engineCfg = *req.Config
	}
	if req.Periods != nil {
		params.periods = *req.Periods
	}
	if req.FreqSeconds != nil {
		params.freq = time.Duration(*req.FreqSeconds) * time.Second
	}
	if req.IncludeHistory != nil {
		params.includeHistory = *req.IncludeHistory
	}
	params.fitPolicy = parsePolicy(req.FitPolicy, params.fitPolicy)
	params.predictPolicy = parsePolicy(req.PredictPolicy, params.predictPolicy)

	resp, err := s.runBatch(r.Context(), req.Rows, params)
	if err != nil {
		s.logger.Error("forecast batch failed", "dataset", params.dataset, "error", err)
		httpx.WriteError(w, statusForError(err), err)
		return
	}

	if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
		s.logger.Error("failed to write JSON response", "error", err)
	}
}

// HandleLatest serves GET /v1/forecast/latest?dataset=<name>.
func (s *Service) HandleLatest(staleAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("dataset")
		if name == "" {
			name = s.cfg.Dataset
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := s.store.GetLatest(ctx, name)
		if err != nil {
			s.logger.Error("failed to get snapshot", "dataset", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no snapshot for dataset %q", name))
			return
		}

		if staleAfter > 0 && time.Since(snapshot.GeneratedAt) > staleAfter {
			w.Header().Set("X-Hyperprophet-Stale", "true")
		}
		if s.metrics != nil {
			s.metrics.SetSnapshotAge(time.Since(snapshot.GeneratedAt).Seconds())
		}

		resp := ForecastResponse{
			Dataset:     snapshot.Dataset,
			Engine:      snapshot.Engine,
			GeneratedAt: snapshot.GeneratedAt,
			Keys:        snapshot.Keys,
			Rows:        snapshot.Rows,
			Failures:    snapshot.Failures,
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			s.logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// runBatch executes one complete forecast batch and stores its snapshot.
func (s *Service) runBatch(ctx context.Context, table dataset.Table, params batchParams) (*ForecastResponse, error) {
	opts := []forecast.Option{
		forecast.WithIntervalWidth(params.engineCfg.IntervalWidth),
		forecast.WithConcurrency(s.cfg.Concurrency),
		forecast.WithJobTimeout(s.cfg.JobTimeout),
		forecast.WithFitErrorPolicy(params.fitPolicy),
		forecast.WithPredictErrorPolicy(params.predictPolicy),
		forecast.WithLogger(s.logger),
	}
	if params.engineCfg.YearlySeasonality {
		opts = append(opts, forecast.WithYearlySeasonality())
	}
	if params.engineCfg.WeeklySeasonality {
		opts = append(opts, forecast.WithWeeklySeasonality())
	}
	if params.engineCfg.DailySeasonality {
		opts = append(opts, forecast.WithDailySeasonality())
	}
	if s.cfg.Dedup == "keep-last" {
		opts = append(opts, forecast.WithDedupPolicy(dataset.DedupKeepLast))
	}

	f := forecast.New(s.engine, opts...)
	for _, season := range params.engineCfg.Seasonalities {
		if err := f.AddSeasonality(season.Name, season.Period, season.FourierOrder, season.Mode); err != nil {
			return nil, err
		}
	}

	fitStart := time.Now()
	fitFailures, err := f.Fit(ctx, table)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("forecast", "fit_failed")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordFit(time.Since(fitStart).Seconds())
	}

	future, err := f.MakeFutureDataframe(params.periods, params.freq, params.includeHistory)
	if err != nil {
		return nil, err
	}

	predictStart := time.Now()
	rows, predictFailures, err := f.Predict(ctx, future)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("forecast", "predict_failed")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordPredict(time.Since(predictStart).Seconds())
	}

	var failures []storage.KeyFailure
	for _, ke := range append(fitFailures, predictFailures...) {
		failures = append(failures, storage.KeyFailure{Key: ke.Key, Error: ke.Err.Error()})
	}

	keys := f.Keys()
	if s.metrics != nil {
		s.metrics.SetBatchKeys(len(keys)+len(failures), len(failures))
	}

	snapshot := storage.Snapshot{
		Dataset:        params.dataset,
		Engine:         s.engine.Name(),
		GeneratedAt:    time.Now().UTC(),
		Periods:        params.periods,
		FreqSeconds:    int(params.freq.Seconds()),
		IncludeHistory: params.includeHistory,
		Keys:           keys,
		Rows:           rows,
		Failures:       failures,
	}
	if err := s.store.Put(ctx, snapshot); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("store", "put_failed")
		}
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SetSnapshotAge(0)
	}

	s.logger.Info("forecast batch complete",
		"dataset", params.dataset,
		"engine", s.engine.Name(),
		"keys", len(keys),
		"failed_keys", len(failures),
		"rows", len(rows),
	)

	return &ForecastResponse{
		Dataset:     snapshot.Dataset,
		Engine:      snapshot.Engine,
		GeneratedAt: snapshot.GeneratedAt,
		Keys:        snapshot.Keys,
		Rows:        snapshot.Rows,
		Failures:    snapshot.Failures,
	}, nil
}

// Run executes the forecast loop at the configured interval, collecting the
// trailing window from the source and forecasting it. Blocks until the
// context is canceled. Requires a configured source.
func (s *Service) Run(ctx context.Context) error {
	if s.source == nil {
		return errors.New("no data source configured")
	}

	s.logger.Info("starting forecast loop",
		"source", s.source.Name(),
		"interval", s.cfg.Interval,
		"window", s.cfg.Window,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if err := s.Tick(ctx); err != nil {
		s.logger.Error("initial forecast tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("forecast loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("forecast tick failed", "error", err)
			}
		}
	}
}

// Tick performs one collect-and-forecast cycle. Exported for testing.
func (s *Service) Tick(ctx context.Context) error {
	start := time.Now()

	table, err := s.collect(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("source", "collect_failed")
		}
		return fmt.Errorf("collect: %w", err)
	}
	if len(table) == 0 {
		s.logger.Warn("source returned no observations, keeping previous snapshot")
		return nil
	}

	if _, err := s.runBatch(ctx, table, s.defaultParams()); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}

	s.logger.Debug("forecast tick complete", "total_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *Service) collect(ctx context.Context) (dataset.Table, error) {
	start := time.Now()

	table, err := s.source.Collect(ctx, int(s.cfg.Window.Seconds()))
	if err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordCollect(duration.Seconds())
	}

	s.logger.Info("collected observations",
		"source", s.source.Name(),
		"rows", len(table),
		"window_seconds", int(s.cfg.Window.Seconds()),
		"duration_ms", duration.Milliseconds(),
	)

	return table, nil
}

// decodeJSON decodes a request body, capping it at 32 MiB.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, 32<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// statusForError maps batch errors onto HTTP status codes: client mistakes
// are 400s, per-key failures surfaced by the raise policy are 422, anything
// else is a 500.
func statusForError(err error) int {
	var schemaErr *dataset.SchemaError
	var dupErr *dataset.DuplicateTimestampError
	var argErr *forecast.InvalidArgumentError
	var stateErr *forecast.InvalidStateError
	var aggErr *forecast.AggregateError

	switch {
	case errors.As(err, &schemaErr), errors.As(err, &dupErr), errors.As(err, &argErr), errors.As(err, &stateErr):
		return http.StatusBadRequest
	case errors.As(err, &aggErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
