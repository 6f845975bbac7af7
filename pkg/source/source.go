// Package source provides data source connectors that pull observations from
// external systems and normalize them into the long-format (key, ds, y)
// table the forecaster consumes.
//
// Each source implements the Source interface. Available sources:
//   - PrometheusSource: fetches series via the Prometheus range-query API,
//     one key per returned series
//   - HTTPSource: generic connector for any REST API with JSON responses,
//     extracting columns with gjson paths
//
// Sources are intentionally thin. They fetch raw data, shape it into a
// [dataset.Table], and leave partitioning, model fitting, and forecasting
// to the layers above.
package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HatiCode/hyperprophet/pkg/dataset"
)

// Source is the interface all data source connectors implement.
//
// Collect fetches the observations of the last windowSeconds and returns
// them as a long-format table with one row per (key, ds) observation. It is
// synchronous and must respect context cancellation and deadlines.
type Source interface {
	Collect(ctx context.Context, windowSeconds int) (dataset.Table, error)
	Name() string
}

// New creates a source from a kind and a generic configuration map. This is
// the central extension point for adding new source types.
//
// Supported kinds:
//   - "prometheus": Prometheus range-query source
//   - "http":       generic JSON-over-HTTP source
func New(kind string, config map[string]string, stepSeconds int) (Source, error) {
	switch kind {
	case "prometheus":
		return newPrometheus(config, stepSeconds)
	case "http":
		return newHTTP(config, stepSeconds)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be prometheus or http)", kind)
	}
}

func newPrometheus(config map[string]string, stepSeconds int) (Source, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("prometheus source requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:9090"
	}

	return &PrometheusSource{
		ServerURL:   url,
		Query:       query,
		KeyLabel:    config["keyLabel"],
		StepSeconds: stepSeconds,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}

	valuePath := config["valuePath"]
	timestampPath := config["timestampPath"]
	if valuePath == "" || timestampPath == "" {
		return nil, fmt.Errorf("http source requires 'valuePath' and 'timestampPath' config")
	}

	keyPath := config["keyPath"]
	staticKey := config["key"]
	if keyPath == "" && staticKey == "" {
		return nil, fmt.Errorf("http source requires either 'keyPath' or a static 'key' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	timestampFormat := config["timestampFormat"]
	if timestampFormat == "" {
		timestampFormat = "rfc3339"
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	return &HTTPSource{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		KeyPath:         keyPath,
		StaticKey:       staticKey,
		ValuePath:       valuePath,
		TimestampPath:   timestampPath,
		TimestampFormat: timestampFormat,
		StepSeconds:     stepSeconds,
	}, nil
}
