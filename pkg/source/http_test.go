package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPSourceCollectWithKeyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"rows": [
				{"tenant": "acme", "ts": "2024-01-01T00:00:00Z", "value": 42.5},
				{"tenant": "acme", "ts": "2024-01-02T00:00:00Z", "value": 43.0},
				{"tenant": "globex", "ts": "2024-01-01T00:00:00Z", "value": 7.0}
			]
		}`))
	}))
	defer srv.Close()

	src := &HTTPSource{
		URL:           srv.URL,
		KeyPath:       "rows.#.tenant",
		ValuePath:     "rows.#.value",
		TimestampPath: "rows.#.ts",
	}

	table, err := src.Collect(context.Background(), 3600)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(table) != 3 {
		t.Fatalf("got %d rows, want 3", len(table))
	}
	if table[0].Key != "acme" || table[0].Y != 42.5 {
		t.Errorf("first row = %+v", table[0])
	}
	if table[2].Key != "globex" || table[2].Y != 7 {
		t.Errorf("third row = %+v", table[2])
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !table[0].DS.Equal(want) {
		t.Errorf("first row timestamp = %v, want %v", table[0].DS, want)
	}
}

func TestHTTPSourceStaticKeyAndUnixTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"ts": 1700000000, "v": 1}, {"ts": 1700000060, "v": 2}]}`))
	}))
	defer srv.Close()

	src := &HTTPSource{
		URL:             srv.URL,
		StaticKey:       "orders",
		ValuePath:       "data.#.v",
		TimestampPath:   "data.#.ts",
		TimestampFormat: "unix",
	}

	table, err := src.Collect(context.Background(), 600)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("got %d rows, want 2", len(table))
	}
	for _, obs := range table {
		if obs.Key != "orders" {
			t.Errorf("key = %q, want orders", obs.Key)
		}
	}
	if table[0].DS.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", table[0].DS)
	}
}

func TestHTTPSourceTemplatedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("auth header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"window": "600s"`) {
			t.Errorf("body = %s", body)
		}
		w.Write([]byte(`{"data": [{"ts": "2024-01-01T00:00:00Z", "v": 1}]}`))
	}))
	defer srv.Close()

	src := &HTTPSource{
		URL:           srv.URL,
		Method:        http.MethodPost,
		Headers:       map[string]string{"Authorization": "Bearer {{.Token}}"},
		Body:          `{"window": "{{.WindowSeconds}}s"}`,
		StaticKey:     "orders",
		ValuePath:     "data.#.v",
		TimestampPath: "data.#.ts",
		TemplateVars:  map[string]string{"Token": "sekrit"},
	}

	if _, err := src.Collect(context.Background(), 600); err != nil {
		t.Fatalf("Collect: %v", err)
	}
}

func TestHTTPSourceColumnMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"keys": ["a", "b"], "vals": [1], "ts": ["2024-01-01T00:00:00Z"]}`))
	}))
	defer srv.Close()

	src := &HTTPSource{
		URL:           srv.URL,
		KeyPath:       "keys.#",
		ValuePath:     "vals.#",
		TimestampPath: "ts.#",
	}
	if _, err := src.Collect(context.Background(), 600); err == nil {
		t.Fatal("expected error for mismatched column lengths")
	}
}

func TestHTTPSourceValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		src  HTTPSource
		ok   bool
	}{
		{"valid", HTTPSource{URL: "http://x", StaticKey: "k", ValuePath: "v", TimestampPath: "t"}, true},
		{"missing url", HTTPSource{StaticKey: "k", ValuePath: "v", TimestampPath: "t"}, false},
		{"missing value path", HTTPSource{URL: "http://x", StaticKey: "k", TimestampPath: "t"}, false},
		{"missing key", HTTPSource{URL: "http://x", ValuePath: "v", TimestampPath: "t"}, false},
		{"bad timestamp format", HTTPSource{URL: "http://x", StaticKey: "k", ValuePath: "v", TimestampPath: "t", TimestampFormat: "iso"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.ValidateConfig()
			if tt.ok && err != nil {
				t.Fatalf("ValidateConfig: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("ValidateConfig accepted an invalid config")
			}
		})
	}
}

func TestFactory(t *testing.T) {
	if _, err := New("carrier-pigeon", nil, 60); err == nil {
		t.Fatal("unknown kind accepted")
	}

	src, err := New("prometheus", map[string]string{"query": "up", "keyLabel": "pod"}, 30)
	if err != nil {
		t.Fatalf("New prometheus: %v", err)
	}
	prom, ok := src.(*PrometheusSource)
	if !ok {
		t.Fatalf("kind prometheus built %T", src)
	}
	if prom.ServerURL != "http://localhost:9090" || prom.KeyLabel != "pod" || prom.StepSeconds != 30 {
		t.Errorf("prometheus source = %+v", prom)
	}
	if _, err := New("prometheus", map[string]string{}, 30); err == nil {
		t.Fatal("prometheus without query accepted")
	}

	src, err = New("http", map[string]string{
		"url":           "http://api",
		"valuePath":     "d.#.v",
		"timestampPath": "d.#.t",
		"key":           "orders",
	}, 60)
	if err != nil {
		t.Fatalf("New http: %v", err)
	}
	hs, ok := src.(*HTTPSource)
	if !ok {
		t.Fatalf("kind http built %T", src)
	}
	if hs.Method != "GET" || hs.TimestampFormat != "rfc3339" || hs.StaticKey != "orders" {
		t.Errorf("http source = %+v", hs)
	}
	if _, err := New("http", map[string]string{"url": "http://api", "valuePath": "v", "timestampPath": "t"}, 60); err == nil {
		t.Fatal("http without key config accepted")
	}
}
