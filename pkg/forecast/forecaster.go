// Package forecast implements the multi-series batch forecasting
// orchestrator.
//
// A Forecaster partitions a long-format table into independent per-key
// series, fans per-key fit and predict jobs out to a pluggable engine on a
// bounded worker pool, and reassembles the per-key results into one table.
// Every key is forecast exactly once; failures are isolated per key; output
// row order is explicitly unspecified.
//
// Typical usage:
//
//	f := forecast.New(engine.NewSeasonalEngine(),
//		forecast.WithWeeklySeasonality(),
//		forecast.WithConcurrency(8),
//	)
//	if _, err := f.Fit(ctx, table); err != nil { ... }
//	future, _ := f.MakeFutureDataframe(30, 0, true)
//	rows, failures, err := f.Predict(ctx, future)
package forecast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/HatiCode/hyperprophet/pkg/dataset"
	"github.com/HatiCode/hyperprophet/pkg/dispatch"
	"github.com/HatiCode/hyperprophet/pkg/engine"
)

// Forecaster is the user-facing orchestration object. It owns the per-key
// fitted models for its lifetime; jobs borrow series and models read-only.
//
// The zero lifecycle is Unfitted → Fit → Fitted. Predict does not mutate fit
// state and may be repeated. A Forecaster must not be fit concurrently with
// itself, but Predict calls may run concurrently once fitted.
type Forecaster struct {
	engine        engine.Engine
	cfg           engine.Config
	concurrency   int
	jobTimeout    time.Duration
	dedup         dataset.DedupPolicy
	fitPolicy     ErrorPolicy
	predictPolicy ErrorPolicy
	allowRefit    bool
	logger        *slog.Logger

	mu     sync.Mutex
	fitted bool
	keys   []string // first-seen key order from the training table
	models map[string]*engine.FittedModel
}

// Option configures a Forecaster at construction.
type Option func(*Forecaster)

// WithYearlySeasonality enables the builtin yearly component.
func WithYearlySeasonality() Option {
	return func(f *Forecaster) { f.cfg.YearlySeasonality = true }
}

// WithWeeklySeasonality enables the builtin weekly component.
func WithWeeklySeasonality() Option {
	return func(f *Forecaster) { f.cfg.WeeklySeasonality = true }
}

// WithDailySeasonality enables the builtin daily component.
func WithDailySeasonality() Option {
	return func(f *Forecaster) { f.cfg.DailySeasonality = true }
}

// WithIntervalWidth sets the uncertainty interval width (0 < w < 1).
func WithIntervalWidth(w float64) Option {
	return func(f *Forecaster) { f.cfg.IntervalWidth = w }
}

// WithConcurrency caps the number of per-key jobs running simultaneously.
// Zero or negative means the available parallelism.
func WithConcurrency(n int) Option {
	return func(f *Forecaster) { f.concurrency = n }
}

// WithJobTimeout bounds each per-key fit or predict job.
func WithJobTimeout(d time.Duration) Option {
	return func(f *Forecaster) { f.jobTimeout = d }
}

// WithDedupPolicy controls duplicate (key, ds) handling during partitioning.
func WithDedupPolicy(p dataset.DedupPolicy) Option {
	return func(f *Forecaster) { f.dedup = p }
}

// WithFitErrorPolicy overrides the fit failure policy (default raise).
func WithFitErrorPolicy(p ErrorPolicy) Option {
	return func(f *Forecaster) { f.fitPolicy = p }
}

// WithPredictErrorPolicy overrides the predict failure policy (default skip,
// surfacing partial availability).
func WithPredictErrorPolicy(p ErrorPolicy) Option {
	return func(f *Forecaster) { f.predictPolicy = p }
}

// WithRefit allows Fit to be called again on a fitted model, resetting its
// state instead of failing with AlreadyFittedError.
func WithRefit() Option {
	return func(f *Forecaster) { f.allowRefit = true }
}

// WithLogger attaches a structured logger. Nil keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forecaster) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates an unfitted Forecaster around an explicitly injected engine.
func New(eng engine.Engine, opts ...Option) *Forecaster {
	f := &Forecaster{
		engine:        eng,
		fitPolicy:     ErrorPolicyRaise,
		predictPolicy: ErrorPolicySkip,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddSeasonality registers a custom seasonal component. Only valid before fit.
func (f *Forecaster) AddSeasonality(name string, period float64, fourierOrder int, mode engine.SeasonalityMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fitted {
		return &InvalidStateError{Op: "AddSeasonality", State: "fitted"}
	}
	if name == "" {
		return &InvalidArgumentError{Msg: "seasonality name must not be empty"}
	}
	if period <= 0 {
		return &InvalidArgumentError{Msg: "seasonality period must be > 0 days"}
	}
	if fourierOrder < 1 {
		return &InvalidArgumentError{Msg: "fourier order must be >= 1"}
	}
	if mode == "" {
		mode = engine.Additive
	}
	if mode != engine.Additive && mode != engine.Multiplicative {
		return &InvalidArgumentError{Msg: "seasonality mode must be additive or multiplicative"}
	}
	for _, s := range f.cfg.Seasonalities {
		if s.Name == name {
			return &InvalidArgumentError{Msg: "seasonality " + name + " is already registered"}
		}
	}

	f.cfg.Seasonalities = append(f.cfg.Seasonalities, engine.Seasonality{
		Name:         name,
		Period:       period,
		FourierOrder: fourierOrder,
		Mode:         mode,
	})
	return nil
}

// Fit partitions the table and fits every key concurrently.
//
// Under the default raise policy any per-key failure fails the whole call
// with an AggregateError and the model stays unfitted. Under the skip policy
// failed keys are reported in the first return value and the model becomes
// fitted with the surviving keys; if every key fails the call still fails.
func (f *Forecaster) Fit(ctx context.Context, table dataset.Table) ([]KeyError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fitted && !f.allowRefit {
		return nil, &AlreadyFittedError{}
	}
	if len(table) == 0 {
		return nil, &InvalidArgumentError{Msg: "input table has no rows"}
	}

	series, err := dataset.Partition(table, dataset.PartitionOptions{Dedup: f.dedup})
	if err != nil {
		return nil, err
	}

	f.logger.Debug("fitting batch",
		"engine", f.engine.Name(),
		"keys", len(series),
		"rows", len(table),
	)

	jobs := make([]dispatch.Job[*engine.FittedModel], len(series))
	for i, s := range series {
		s := s
		jobs[i] = dispatch.Job[*engine.FittedModel]{
			Key: s.Key,
			Do: func(jctx context.Context) (*engine.FittedModel, error) {
				return f.engine.Fit(jctx, s, f.cfg)
			},
		}
	}

	results := dispatch.Run(ctx, jobs, dispatch.Options{
		Concurrency: f.concurrency,
		JobTimeout:  f.jobTimeout,
	})

	// Each key's slot is written exactly once, by the result of the worker
	// that completed that key.
	models := make(map[string]*engine.FittedModel, len(results))
	keys := make([]string, 0, len(results))
	var failures []KeyError
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, KeyError{Key: res.Key, Err: res.Err})
			continue
		}
		models[res.Key] = res.Value
		keys = append(keys, res.Key)
	}

	report, err := applyPolicy(failures, f.fitPolicy)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, &AggregateError{Errors: failures}
	}

	f.keys = keys
	f.models = models
	f.fitted = true

	f.logger.Info("batch fit complete",
		"engine", f.engine.Name(),
		"keys", len(keys),
		"failed_keys", len(report),
	)
	return report, nil
}

// Fitted reports whether the model holds a fitted set.
func (f *Forecaster) Fitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fitted
}

// Keys returns the fitted keys in first-seen training order.
func (f *Forecaster) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Model returns the fitted model for one key.
func (f *Forecaster) Model(key string) (*engine.FittedModel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[key]
	return m, ok
}

// MakeFutureDataframe builds a future frame covering every fitted key:
// periods steps beyond each key's training maximum at the given frequency,
// optionally preceded by the key's training timestamps. A zero freq is
// inferred from each key's training spacing (falling back to daily).
func (f *Forecaster) MakeFutureDataframe(periods int, freq time.Duration, includeHistory bool) (FutureFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.fitted {
		return nil, &InvalidStateError{Op: "MakeFutureDataframe", State: "unfitted"}
	}

	// Non-nil even when empty, so zero periods without history asks
	// Predict for zero rows rather than the nil in-sample default.
	frame := FutureFrame{}
	for _, key := range f.keys {
		dates, err := futureRange(f.models[key], periods, freq, includeHistory)
		if err != nil {
			return nil, err
		}
		for _, ds := range dates {
			frame = append(frame, FuturePoint{Key: key, DS: ds})
		}
	}
	return frame, nil
}

// Predict forecasts the requested (key, ds) pairs concurrently.
//
// A nil future frame defaults to the training timestamps of every fitted key
// (the in-sample forecast); a non-nil empty frame requests nothing and
// yields an empty table. Unknown keys fail the call fast with an
// UnknownKeyError. Under the default skip policy, failed keys are omitted
// from the table and reported in the second return value; the raise policy
// turns any failure into an AggregateError.
//
// The returned rows carry no order guarantee relative to the future frame.
func (f *Forecaster) Predict(ctx context.Context, future FutureFrame) ([]engine.ForecastRow, []KeyError, error) {
	f.mu.Lock()
	if !f.fitted {
		f.mu.Unlock()
		return nil, nil, &InvalidStateError{Op: "Predict", State: "unfitted"}
	}
	models := f.models
	keys := f.keys
	f.mu.Unlock()

	if future == nil {
		for _, key := range keys {
			for _, ds := range models[key].TrainTimes {
				future = append(future, FuturePoint{Key: key, DS: ds})
			}
		}
	} else if len(future) == 0 {
		return []engine.ForecastRow{}, nil, nil
	}

	// Group requested dates per key, preserving the frame's first-seen key
	// order for deterministic job enumeration.
	datesByKey := make(map[string][]time.Time)
	var jobKeys []string
	for _, fp := range future {
		if _, ok := models[fp.Key]; !ok {
			return nil, nil, &UnknownKeyError{Key: fp.Key}
		}
		if _, seen := datesByKey[fp.Key]; !seen {
			jobKeys = append(jobKeys, fp.Key)
		}
		datesByKey[fp.Key] = append(datesByKey[fp.Key], fp.DS)
	}

	f.logger.Debug("predicting batch",
		"engine", f.engine.Name(),
		"keys", len(jobKeys),
		"rows", len(future),
	)

	jobs := make([]dispatch.Job[[]engine.ForecastRow], len(jobKeys))
	for i, key := range jobKeys {
		model := models[key]
		dates := datesByKey[key]
		jobs[i] = dispatch.Job[[]engine.ForecastRow]{
			Key: key,
			Do: func(jctx context.Context) ([]engine.ForecastRow, error) {
				return f.engine.Predict(jctx, model, dates)
			},
		}
	}

	results := dispatch.Run(ctx, jobs, dispatch.Options{
		Concurrency: f.concurrency,
		JobTimeout:  f.jobTimeout,
	})

	rows, failures := mergeRows(results)
	report, err := applyPolicy(failures, f.predictPolicy)
	if err != nil {
		return nil, nil, err
	}

	f.logger.Info("batch predict complete",
		"engine", f.engine.Name(),
		"keys", len(jobKeys),
		"rows", len(rows),
		"failed_keys", len(report),
	)
	return rows, report, nil
}

// Reset returns the model to the unfitted state, discarding all fitted
// per-key models.
func (f *Forecaster) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fitted = false
	f.keys = nil
	f.models = nil
}
