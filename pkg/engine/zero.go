package engine

import (
	"context"
	"time"

	"github.com/HatiCode/hyperprophet/pkg/dataset"
)

// ZeroEngine forecasts 0.0 for every numeric column of every requested row.
//
// It exists for testing the orchestration path: the output is fully
// deterministic, so batch plumbing bugs (lost keys, duplicated rows,
// misattributed results) are directly observable.
type ZeroEngine struct{}

// NewZeroEngine creates the deterministic test engine.
func NewZeroEngine() *ZeroEngine { return &ZeroEngine{} }

// Name returns the engine identifier.
func (e *ZeroEngine) Name() string { return "zero" }

// Fit validates the series and records its metadata. No model state is kept;
// zero forecasts need none.
func (e *ZeroEngine) Fit(ctx context.Context, series dataset.Series, cfg Config) (*FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTrainable(series); err != nil {
		return nil, &FitError{Key: series.Key, Cause: err}
	}
	return NewFittedModel(series, cfg), nil
}

// Predict returns one all-zero row per requested date.
func (e *ZeroEngine) Predict(ctx context.Context, model *FittedModel, dates []time.Time) ([]ForecastRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]ForecastRow, len(dates))
	for i, ds := range dates {
		rows[i] = ForecastRow{Key: model.Key, DS: ds}
	}
	return rows, nil
}
