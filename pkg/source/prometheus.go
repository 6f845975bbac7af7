package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/HatiCode/hyperprophet/pkg/dataset"
	"github.com/HatiCode/hyperprophet/pkg/httpx"
)

// PrometheusSource fetches time-series data from the Prometheus HTTP API.
// It issues a /api/v1/query_range call and returns one table row per
// (series, sample). Each returned series becomes its own forecast key.
//
// The key is taken from KeyLabel on the series' label set; when KeyLabel is
// empty the full sorted label set is rendered into a key of the form
// `{job="api", pod="api-0"}`. An unlabeled single series maps to the key
// "default".
type PrometheusSource struct {
	// ServerURL is the base URL to Prometheus, e.g. http://prometheus:9090
	ServerURL string
	// Query is the PromQL expression to evaluate.
	Query string
	// KeyLabel selects the label whose value identifies each series.
	KeyLabel string
	// StepSeconds controls the resolution (defaults to 60s if <= 0).
	StepSeconds int
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusSource) Name() string { return "prometheus" }

// Collect implements Source. It queries Prometheus for the last
// windowSeconds of data at StepSeconds resolution.
func (p *PrometheusSource) Collect(ctx context.Context, windowSeconds int) (dataset.Table, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, errors.New("prometheus source: ServerURL and Query are required")
	}
	step := p.StepSeconds
	if step <= 0 {
		step = 60
	}
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", fmt.Sprintf("%d", start.Unix()))
	q.Set("end", fmt.Sprintf("%d", now.Unix()))
	q.Set("step", fmt.Sprintf("%d", step))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = httpx.NewClient(10 * time.Second)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus: status %d", resp.StatusCode)
	}

	var pr rangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode prometheus response: %w", err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("prometheus status: %s", pr.Status)
	}

	var table dataset.Table
	for _, serie := range pr.Data.Result {
		key := p.seriesKey(serie.Metric)
		for _, pair := range serie.Values {
			ts, y, err := parseSamplePair(pair)
			if err != nil {
				return nil, err
			}
			table = append(table, dataset.Observation{Key: key, DS: ts, Y: y})
		}
	}
	return table, nil
}

// seriesKey maps a series' label set to a forecast key.
func (p *PrometheusSource) seriesKey(metric map[string]string) string {
	if p.KeyLabel != "" {
		if v := metric[p.KeyLabel]; v != "" {
			return v
		}
	}
	if len(metric) == 0 {
		return "default"
	}

	names := make([]string, 0, len(metric))
	for name := range metric {
		names = append(names, name)
	}
	sort.Strings(names)

	key := "{"
	for i, name := range names {
		if i > 0 {
			key += ", "
		}
		key += fmt.Sprintf("%s=%q", name, metric[name])
	}
	return key + "}"
}

// rangeResponse mirrors the Prometheus range-query response envelope.
type rangeResponse struct {
	Status string    `json:"status"`
	Data   rangeData `json:"data"`
}

type rangeData struct {
	ResultType string       `json:"resultType"`
	Result     []rangeSerie `json:"result"`
}

type rangeSerie struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// parseSamplePair decodes one [timestamp, value] pair from a range result.
func parseSamplePair(pair []any) (time.Time, float64, error) {
	if len(pair) != 2 {
		return time.Time{}, 0, fmt.Errorf("invalid value pair length: %d", len(pair))
	}

	var tsSec int64
	switch v := pair[0].(type) {
	case float64:
		tsSec = int64(v)
	case json.Number:
		f, _ := v.Float64()
		tsSec = int64(f)
	default:
		return time.Time{}, 0, fmt.Errorf("unexpected timestamp type %T", v)
	}

	var y float64
	switch v := pair[1].(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("parse value: %w", err)
		}
		y = f
	case float64:
		y = v
	case json.Number:
		f, _ := v.Float64()
		y = f
	default:
		return time.Time{}, 0, fmt.Errorf("unexpected value type %T", v)
	}

	return time.Unix(tsSec, 0).UTC(), y, nil
}
