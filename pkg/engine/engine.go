// Package engine defines the per-key forecasting engine contract and its
// implementations.
//
// An Engine fits and predicts exactly one key's series at a time. The batch
// orchestrator in pkg/forecast dispatches many independent per-key jobs
// against a single Engine instance, so every implementation must be safe to
// invoke concurrently across different keys. An Engine is never invoked
// concurrently for the same key.
//
// Available engines:
//   - ZeroEngine: deterministic test engine, forecasts 0.0 everywhere
//   - SeasonalEngine: local trend + Fourier seasonality engine
//   - RemoteEngine: delegates computation to an external HTTP service
//
// Engines are selected by explicit injection: the caller constructs one and
// hands it to the forecaster. There is no process-wide engine registry.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/HatiCode/hyperprophet/pkg/dataset"
)

// SeasonalityMode controls how a seasonal component combines with the trend.
type SeasonalityMode string

const (
	// Additive seasonality is added to the trend.
	Additive SeasonalityMode = "additive"
	// Multiplicative seasonality scales the trend.
	Multiplicative SeasonalityMode = "multiplicative"
)

// Seasonality describes one periodic component of the model.
type Seasonality struct {
	// Name identifies the component, e.g. "weekly".
	Name string `json:"name"`
	// Period is the cycle length in days (7 for weekly, 365.25 for yearly).
	Period float64 `json:"period"`
	// FourierOrder is the number of Fourier term pairs used to model the cycle.
	FourierOrder int `json:"fourierOrder"`
	// Mode is additive or multiplicative. Empty means additive.
	Mode SeasonalityMode `json:"mode,omitempty"`
}

// Config carries the per-model engine configuration. It is read-only during
// job execution and shared across all keys of a batch.
type Config struct {
	YearlySeasonality bool `json:"yearlySeasonality,omitempty"`
	WeeklySeasonality bool `json:"weeklySeasonality,omitempty"`
	DailySeasonality  bool `json:"dailySeasonality,omitempty"`

	// Seasonalities holds custom components registered via AddSeasonality.
	Seasonalities []Seasonality `json:"seasonalities,omitempty"`

	// IntervalWidth is the width of the uncertainty interval, e.g. 0.8 for
	// an 80% interval. Zero means the default of 0.8.
	IntervalWidth float64 `json:"intervalWidth,omitempty"`
}

// EffectiveSeasonalities expands the builtin seasonality switches and appends
// the custom components, in a stable order.
func (c Config) EffectiveSeasonalities() []Seasonality {
	var out []Seasonality
	if c.YearlySeasonality {
		out = append(out, Seasonality{Name: "yearly", Period: 365.25, FourierOrder: 10, Mode: Additive})
	}
	if c.WeeklySeasonality {
		out = append(out, Seasonality{Name: "weekly", Period: 7, FourierOrder: 3, Mode: Additive})
	}
	if c.DailySeasonality {
		out = append(out, Seasonality{Name: "daily", Period: 1, FourierOrder: 4, Mode: Additive})
	}
	for _, s := range c.Seasonalities {
		if s.Mode == "" {
			s.Mode = Additive
		}
		out = append(out, s)
	}
	return out
}

// FittedModel is the per-key output of Fit. The orchestrator holds one per
// key; State is opaque engine-owned model state and must only be interpreted
// by the engine that produced it.
type FittedModel struct {
	Key string

	// MinDS and MaxDS are the training date bounds.
	MinDS time.Time
	MaxDS time.Time

	// TrainTimes are the training timestamps, ascending. Used to build
	// history-inclusive future ranges and to infer the data frequency.
	TrainTimes []time.Time

	// Config is the engine configuration the model was fit with.
	Config Config

	// State is the engine-specific fitted state.
	State any
}

// NewFittedModel populates the metadata shared by all engines from the
// training series. Engines call this and then attach their State.
func NewFittedModel(series dataset.Series, cfg Config) *FittedModel {
	return &FittedModel{
		Key:        series.Key,
		MinDS:      series.Start(),
		MaxDS:      series.End(),
		TrainTimes: series.Times(),
		Config:     cfg,
	}
}

// ForecastRow is one forecast output row. Column names follow the Prophet
// convention so downstream consumers can treat the output uniformly.
type ForecastRow struct {
	Key string    `json:"key"`
	DS  time.Time `json:"ds"`

	Yhat      float64 `json:"yhat"`
	YhatLower float64 `json:"yhat_lower"`
	YhatUpper float64 `json:"yhat_upper"`

	Trend      float64 `json:"trend"`
	TrendLower float64 `json:"trend_lower"`
	TrendUpper float64 `json:"trend_upper"`

	AdditiveTerms      float64 `json:"additive_terms"`
	AdditiveTermsLower float64 `json:"additive_terms_lower"`
	AdditiveTermsUpper float64 `json:"additive_terms_upper"`

	MultiplicativeTerms      float64 `json:"multiplicative_terms"`
	MultiplicativeTermsLower float64 `json:"multiplicative_terms_lower"`
	MultiplicativeTermsUpper float64 `json:"multiplicative_terms_upper"`
}

// Engine is the uniform interface to a single-series forecasting backend.
//
// Both operations work on one key at a time. Implementations must be safe
// for concurrent use across different keys and must respect the context for
// cancellation and deadlines on any blocking work.
type Engine interface {
	// Name returns a short engine identifier, e.g. "zero".
	Name() string

	// Fit trains a model on one key's series. It fails with a *FitError on
	// insufficient data (fewer than 2 distinct timestamps) or numerical
	// non-convergence.
	Fit(ctx context.Context, series dataset.Series, cfg Config) (*FittedModel, error)

	// Predict forecasts the given dates using a model previously produced by
	// this engine's Fit. It fails with a *PredictError on a model mismatch.
	Predict(ctx context.Context, model *FittedModel, dates []time.Time) ([]ForecastRow, error)
}

// FitError reports a per-key fit failure. It never aborts sibling keys.
type FitError struct {
	Key   string
	Cause error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit failed for key %q: %v", e.Key, e.Cause)
}

func (e *FitError) Unwrap() error { return e.Cause }

// PredictError reports a per-key predict failure.
type PredictError struct {
	Key   string
	Cause error
}

func (e *PredictError) Error() string {
	return fmt.Sprintf("predict failed for key %q: %v", e.Key, e.Cause)
}

func (e *PredictError) Unwrap() error { return e.Cause }

// validateTrainable rejects series that cannot support a fit. Partition has
// already deduplicated timestamps, so point count equals distinct count.
func validateTrainable(series dataset.Series) error {
	if len(series.Points) < 2 {
		return fmt.Errorf("series has %d distinct timestamps, need at least 2", len(series.Points))
	}
	return nil
}
