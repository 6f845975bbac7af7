package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HatiCode/hyperprophet/cmd/forecastd/config"
	"github.com/HatiCode/hyperprophet/pkg/dataset"
	"github.com/HatiCode/hyperprophet/pkg/engine"
	"github.com/HatiCode/hyperprophet/pkg/source"
	"github.com/HatiCode/hyperprophet/pkg/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Dataset:        "default",
		Engine:         "zero",
		IntervalWidth:  0.8,
		Periods:        2,
		IncludeHistory: false,
		FitPolicy:      "raise",
		PredictPolicy:  "skip",
		Dedup:          "reject",
		Window:         24 * time.Hour,
		Interval:       time.Minute,
	}
}

func testService(cfg *config.Config, src source.Source) (*Service, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(cfg, &engine.ZeroEngine{}, src, store, log, nil), store
}

func obs(key string, day int, y float64) dataset.Observation {
	return dataset.Observation{
		Key: key,
		DS:  time.Date(2020, 1, 1+day, 0, 0, 0, 0, time.UTC),
		Y:   y,
	}
}

func trainingRows() []dataset.Observation {
	var rows []dataset.Observation
	for _, key := range []string{"A", "B"} {
		for d := 0; d < 4; d++ {
			rows = append(rows, obs(key, d, 10))
		}
	}
	return rows
}

func postForecast(t *testing.T, svc *Service, req ForecastRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	rec := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/forecast", bytes.NewReader(body))
	svc.HandleForecast(rec, httpReq)
	return rec
}

func TestHandleForecastEndToEnd(t *testing.T) {
	svc, store := testService(testConfig(), nil)

	rec := postForecast(t, svc, ForecastRequest{Rows: trainingRows()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ForecastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Dataset != "default" || resp.Engine != "zero" {
		t.Errorf("response metadata = %+v", resp)
	}
	if len(resp.Keys) != 2 {
		t.Fatalf("keys = %v, want A and B", resp.Keys)
	}

	// Two keys, two steps past each training maximum, all columns zero.
	if len(resp.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(resp.Rows))
	}
	wantDates := map[string]bool{"2020-01-05": true, "2020-01-06": true}
	for _, row := range resp.Rows {
		if !wantDates[row.DS.Format("2006-01-02")] {
			t.Errorf("unexpected forecast date %s", row.DS)
		}
		if row.Yhat != 0 || row.YhatLower != 0 || row.YhatUpper != 0 {
			t.Errorf("row (%s, %s) is not zero: %+v", row.Key, row.DS, row)
		}
	}

	// The batch result is also persisted.
	snap, found, err := store.GetLatest(context.Background(), "default")
	if err != nil || !found {
		t.Fatalf("snapshot not stored: found=%v err=%v", found, err)
	}
	if len(snap.Rows) != 4 || snap.Periods != 2 {
		t.Errorf("stored snapshot = %+v", snap)
	}
}

func TestHandleForecastOverrides(t *testing.T) {
	svc, store := testService(testConfig(), nil)

	periods := 1
	includeHistory := true
	rec := postForecast(t, svc, ForecastRequest{
		Dataset:        "orders",
		Rows:           trainingRows(),
		Periods:        &periods,
		IncludeHistory: &includeHistory,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ForecastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Four training rows plus one future step, per key.
	if len(resp.Rows) != 10 {
		t.Fatalf("got %d rows, want 10", len(resp.Rows))
	}

	if _, found, _ := store.GetLatest(context.Background(), "orders"); !found {
		t.Error("override dataset was not stored under its own name")
	}
}

func TestHandleForecastBadRequests(t *testing.T) {
	svc, _ := testService(testConfig(), nil)

	t.Run("empty rows", func(t *testing.T) {
		rec := postForecast(t, svc, ForecastRequest{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/forecast", bytes.NewBufferString("{not json"))
		svc.HandleForecast(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing column", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := `{"rows": [{"key": "A", "ds": "2020-01-01"}]}`
		req := httptest.NewRequest(http.MethodPost, "/v1/forecast", bytes.NewBufferString(body))
		svc.HandleForecast(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("duplicate timestamps", func(t *testing.T) {
		rows := []dataset.Observation{obs("A", 0, 1), obs("A", 0, 2), obs("A", 1, 3)}
		rec := postForecast(t, svc, ForecastRequest{Rows: rows})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/forecast", nil)
		svc.HandleForecast(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestHandleForecastSingleObservationKey(t *testing.T) {
	svc, _ := testService(testConfig(), nil)

	// Key C has only one observation and cannot be fit; under the raise
	// policy the whole batch fails with 422.
	rows := append(trainingRows(), obs("C", 0, 1))
	rec := postForecast(t, svc, ForecastRequest{Rows: rows})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body = %s", rec.Code, rec.Body.String())
	}

	// Under the skip policy the surviving keys are forecast and the failed
	// key is reported.
	rec = postForecast(t, svc, ForecastRequest{Rows: rows, FitPolicy: "skip"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp ForecastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Keys) != 2 {
		t.Errorf("keys = %v, want the two surviving keys", resp.Keys)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].Key != "C" {
		t.Errorf("failures = %+v, want single entry for key C", resp.Failures)
	}
}

func TestHandleLatest(t *testing.T) {
	svc, store := testService(testConfig(), nil)

	if err := store.Put(context.Background(), storage.Snapshot{
		Dataset:     "default",
		Engine:      "zero",
		GeneratedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	handler := svc.HandleLatest(2 * time.Minute)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/v1/forecast/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Hyperprophet-Stale") != "true" {
		t.Error("hour-old snapshot served without the stale header")
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/v1/forecast/latest?dataset=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// tableSource is a stub data source for loop tests.
type tableSource struct {
	table dataset.Table
	err   error
	calls int
}

func (s *tableSource) Name() string { return "stub" }

func (s *tableSource) Collect(ctx context.Context, windowSeconds int) (dataset.Table, error) {
	s.calls++
	return s.table, s.err
}

func TestTick(t *testing.T) {
	src := &tableSource{table: dataset.Table(trainingRows())}
	svc, store := testService(testConfig(), src)

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("source collected %d times, want 1", src.calls)
	}

	snap, found, err := store.GetLatest(context.Background(), "default")
	if err != nil || !found {
		t.Fatalf("snapshot not stored: found=%v err=%v", found, err)
	}
	if len(snap.Keys) != 2 {
		t.Errorf("snapshot keys = %v", snap.Keys)
	}
}

func TestTickSourceFailure(t *testing.T) {
	src := &tableSource{err: errors.New("scrape failed")}
	svc, store := testService(testConfig(), src)

	if err := svc.Tick(context.Background()); err == nil {
		t.Fatal("Tick succeeded despite source failure")
	}
	if _, found, _ := store.GetLatest(context.Background(), "default"); found {
		t.Error("failed tick stored a snapshot")
	}
}

func TestTickEmptyTableKeepsSnapshot(t *testing.T) {
	src := &tableSource{}
	svc, store := testService(testConfig(), src)

	previous := storage.Snapshot{Dataset: "default", Engine: "zero", GeneratedAt: time.Now()}
	if err := store.Put(context.Background(), previous); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, found, _ := store.GetLatest(context.Background(), "default"); !found {
		t.Error("empty collection removed the previous snapshot")
	}
}

func TestRunRequiresSource(t *testing.T) {
	svc, _ := testService(testConfig(), nil)
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded without a source")
	}
}
