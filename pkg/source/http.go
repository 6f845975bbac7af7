package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/hyperprophet/pkg/dataset"
	"github.com/HatiCode/hyperprophet/pkg/httpx"
)

// HTTPSource is a generic connector that can call any REST API endpoint and
// extract long-format observations using JSON path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body with variables: {{.WindowSeconds}},
//     {{.Start}}, {{.End}}, {{.Step}}, {{.StartRFC3339}}, {{.EndRFC3339}}
//   - Custom headers including authentication tokens
//   - gjson path extraction for keys, timestamps, and values
//   - Flexible timestamp parsing (RFC3339, Unix seconds, Unix milliseconds)
//
// Example configuration for a custom metrics API:
//
//	src := &HTTPSource{
//	    URL:    "https://api.example.com/series",
//	    Method: "POST",
//	    Body:   `{"window": "{{.WindowSeconds}}s"}`,
//	    KeyPath:       "rows.#.tenant",
//	    ValuePath:     "rows.#.value",
//	    TimestampPath: "rows.#.ts",
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required).
	URL string

	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request. Values can
	// use the same template variables as Body.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// KeyPath is the gjson path to extract the forecast key of each
	// observation. Must return the same number of elements as ValuePath.
	// Leave empty to assign every observation to StaticKey.
	KeyPath string

	// StaticKey is the key used for every observation when KeyPath is empty,
	// for APIs that serve a single series.
	StaticKey string

	// ValuePath is the gjson path to extract observation values. Use "#"
	// for arrays, e.g. "data.#.value".
	ValuePath string

	// TimestampPath is the gjson path to extract timestamps. Must return
	// the same number of elements as ValuePath.
	TimestampPath string

	// TimestampFormat specifies how to parse timestamps:
	//   "rfc3339"    - RFC3339 strings (default)
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	TimestampFormat string

	// StepSeconds controls the resolution (defaults to 60s if <= 0).
	StepSeconds int

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in Body and Headers
	// templates, e.g. tokens or API keys.
	TemplateVars map[string]string
}

func (h *HTTPSource) Name() string { return "http" }

// Collect implements Source. It calls the configured endpoint and extracts
// observations using the configured JSON paths.
func (h *HTTPSource) Collect(ctx context.Context, windowSeconds int) (dataset.Table, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	step := h.StepSeconds
	if step <= 0 {
		step = 60
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	templateData := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = httpx.NewClient(10 * time.Second)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	values := gjson.GetBytes(respBody, h.ValuePath)
	timestamps := gjson.GetBytes(respBody, h.TimestampPath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()
	if len(valArray) != len(tsArray) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	var keyArray []gjson.Result
	if h.KeyPath != "" {
		keys := gjson.GetBytes(respBody, h.KeyPath)
		if !keys.Exists() {
			return nil, fmt.Errorf("key path %q not found in response", h.KeyPath)
		}
		keyArray = keys.Array()
		if len(keyArray) != len(valArray) {
			return nil, fmt.Errorf("key count (%d) != value count (%d)", len(keyArray), len(valArray))
		}
	}

	table := make(dataset.Table, 0, len(valArray))
	for i := range valArray {
		key := h.StaticKey
		if keyArray != nil {
			key = keyArray[i].String()
		}

		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}

		table = append(table, dataset.Observation{
			Key: key,
			DS:  ts,
			Y:   valArray[i].Float(),
		})
	}
	return table, nil
}

func (h *HTTPSource) parseTimestamp(value gjson.Result) (time.Time, error) {
	format := h.TimestampFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// ValidateConfig checks that the source configuration is usable.
func (h *HTTPSource) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("URL is required")
	}
	if h.ValuePath == "" {
		return errors.New("ValuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("TimestampPath is required")
	}
	if h.KeyPath == "" && h.StaticKey == "" {
		return errors.New("either KeyPath or StaticKey is required")
	}

	switch h.TimestampFormat {
	case "", "rfc3339", "unix", "unix_milli":
	default:
		return fmt.Errorf("invalid TimestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
	return nil
}

// renderTemplate renders a text template with the given data.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
