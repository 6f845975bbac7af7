package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HatiCode/hyperprophet/pkg/dataset"
	"github.com/HatiCode/hyperprophet/pkg/httpx"
)

// RemoteEngine delegates per-key forecasting to an external compute service
// over HTTP JSON. The service implements a single stateless endpoint: it
// receives one key's training points, the dates to forecast and the engine
// configuration, and returns the forecast rows (the contract served by
// cmd/engined).
//
// Fit is local: like the remote-backed Prophet it mirrors, the engine keeps
// the training series in the fitted state and ships it with every predict
// call, so the service itself holds no per-model state. Transport, auth and
// batching-over-the-wire beyond this contract are out of scope; the caller
// controls cancellation and deadlines through the context and Timeout.
type RemoteEngine struct {
	// Endpoint is the job submission URL, e.g. http://engined:8082/v1/jobs.
	Endpoint string

	// Timeout bounds each HTTP call. Zero means 30s.
	Timeout time.Duration

	// HTTPClient is optional; if nil a default client is used.
	HTTPClient *http.Client
}

// remoteState is the opaque fitted state: the training points shipped to
// the service on every predict.
type remoteState struct {
	points []dataset.Point
}

// JobRequest is the wire format of a remote forecast job.
type JobRequest struct {
	Key    string          `json:"key"`
	Points []dataset.Point `json:"points"`
	Dates  []time.Time     `json:"dates"`
	Config Config          `json:"config"`
}

// JobResponse is the wire format of a remote forecast result.
type JobResponse struct {
	Key  string        `json:"key"`
	Rows []ForecastRow `json:"rows"`
}

// NewRemoteEngine creates an engine backed by the given job endpoint.
func NewRemoteEngine(endpoint string, timeout time.Duration) *RemoteEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEngine{
		Endpoint:   endpoint,
		Timeout:    timeout,
		HTTPClient: httpx.NewClient(timeout),
	}
}

// Name returns the engine identifier.
func (e *RemoteEngine) Name() string { return "remote" }

// Fit validates the series and captures it for later predict calls. No
// network traffic happens here; the remote service is stateless.
func (e *RemoteEngine) Fit(ctx context.Context, series dataset.Series, cfg Config) (*FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Endpoint == "" {
		return nil, &FitError{Key: series.Key, Cause: fmt.Errorf("remote engine endpoint is required")}
	}
	if err := validateTrainable(series); err != nil {
		return nil, &FitError{Key: series.Key, Cause: err}
	}

	model := NewFittedModel(series, cfg)
	model.State = &remoteState{points: series.Points}
	return model, nil
}

// Predict submits one key's job to the remote service and decodes the rows.
func (e *RemoteEngine) Predict(ctx context.Context, model *FittedModel, dates []time.Time) ([]ForecastRow, error) {
	state, ok := model.State.(*remoteState)
	if !ok {
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("model was not fit by the remote engine")}
	}

	req := JobRequest{
		Key:    model.Key,
		Points: state.points,
		Dates:  dates,
		Config: model.Config,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("marshal job: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client().Do(httpReq)
	if err != nil {
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("submit job: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("engine service returned %d: %s", resp.StatusCode, msg)}
	}

	var jobResp JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jobResp); err != nil {
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("decode response: %w", err)}
	}

	if jobResp.Key != "" && jobResp.Key != model.Key {
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("service answered for key %q", jobResp.Key)}
	}
	if len(jobResp.Rows) != len(dates) {
		return nil, &PredictError{Key: model.Key, Cause: fmt.Errorf("expected %d rows, got %d", len(dates), len(jobResp.Rows))}
	}

	for i := range jobResp.Rows {
		jobResp.Rows[i].Key = model.Key
	}
	return jobResp.Rows, nil
}

func (e *RemoteEngine) client() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}
