package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoteEngine_Predict(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	var gotReq JobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		rows := make([]ForecastRow, len(gotReq.Dates))
		for i, ds := range gotReq.Dates {
			rows[i] = ForecastRow{Key: gotReq.Key, DS: ds, Yhat: 42}
		}
		json.NewEncoder(w).Encode(JobResponse{Key: gotReq.Key, Rows: rows})
	}))
	defer server.Close()

	eng := NewRemoteEngine(server.URL, 5*time.Second)
	model, err := eng.Fit(context.Background(), daily("a", start, 1, 2, 3), Config{WeeklySeasonality: true})
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}

	dates := []time.Time{start.AddDate(0, 0, 3), start.AddDate(0, 0, 4)}
	rows, err := eng.Predict(context.Background(), model, dates)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}

	if gotReq.Key != "a" {
		t.Errorf("request key = %q, want a", gotReq.Key)
	}
	if len(gotReq.Points) != 3 {
		t.Errorf("request carried %d points, want 3", len(gotReq.Points))
	}
	if !gotReq.Config.WeeklySeasonality {
		t.Error("request config lost weekly seasonality")
	}
	if len(rows) != 2 || rows[0].Yhat != 42 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestRemoteEngine_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model blew up", http.StatusInternalServerError)
	}))
	defer server.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := NewRemoteEngine(server.URL, 5*time.Second)
	model, err := eng.Fit(context.Background(), daily("a", start, 1, 2), Config{})
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}

	_, err = eng.Predict(context.Background(), model, []time.Time{start.AddDate(0, 0, 2)})
	var predictErr *PredictError
	if !errors.As(err, &predictErr) {
		t.Fatalf("got error %v, want PredictError", err)
	}
	if predictErr.Key != "a" {
		t.Errorf("PredictError key = %q, want a", predictErr.Key)
	}
}

func TestRemoteEngine_RowCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JobResponse{Rows: []ForecastRow{{Key: "a"}}})
	}))
	defer server.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := NewRemoteEngine(server.URL, 5*time.Second)
	model, err := eng.Fit(context.Background(), daily("a", start, 1, 2), Config{})
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}

	_, err = eng.Predict(context.Background(), model, []time.Time{start.AddDate(0, 0, 2), start.AddDate(0, 0, 3)})
	var predictErr *PredictError
	if !errors.As(err, &predictErr) {
		t.Fatalf("got error %v, want PredictError", err)
	}
}

func TestRemoteEngine_ContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := NewRemoteEngine(server.URL, 30*time.Second)
	model, err := eng.Fit(context.Background(), daily("a", start, 1, 2), Config{})
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = eng.Predict(ctx, model, []time.Time{start.AddDate(0, 0, 2)})
	if err == nil {
		t.Fatal("Predict() succeeded despite canceled context")
	}
}

func TestRemoteEngine_FitRequiresEndpoint(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := &RemoteEngine{}
	_, err := eng.Fit(context.Background(), daily("a", start, 1, 2), Config{})
	var fitErr *FitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("got error %v, want FitError", err)
	}
}
