// Package config provides configuration parsing for forecastd.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence. The Config struct contains all runtime configuration:
//   - HTTP server settings (listen address)
//   - Engine selection (zero, seasonal, or remote) and engine parameters
//   - Batch settings (concurrency, per-job timeout, duplicate policy)
//   - Forecast parameters (periods, frequency, history inclusion)
//   - Optional data source for the periodic forecast loop
//   - Snapshot storage backend (memory or redis)
//   - Logging configuration (level, format)
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config holds all forecastd configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	Engine        string
	EngineURL     string
	IntervalWidth float64
	Yearly        bool
	Weekly        bool
	Daily         bool

	Concurrency int
	JobTimeout  time.Duration
	Dedup       string

	Dataset        string
	Periods        int
	Freq           time.Duration
	IncludeHistory bool
	FitPolicy      string
	PredictPolicy  string

	Source       string
	SourceConfig map[string]string
	Window       time.Duration
	Interval     time.Duration
	Step         time.Duration
}

// ParseFlags parses command-line flags and environment variables into a
// Config. Environment variables are used as fallbacks when flags are not
// provided.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Snapshot storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis snapshot TTL")

	flag.StringVar(&cfg.Engine, "engine", getEnv("ENGINE", "seasonal"), "Forecast engine: zero, seasonal, or remote")
	flag.StringVar(&cfg.EngineURL, "engine-url", getEnv("ENGINE_URL", ""), "Remote engine job URL (required when engine=remote)")
	flag.Float64Var(&cfg.IntervalWidth, "interval-width", getEnvFloat("INTERVAL_WIDTH", 0.8), "Uncertainty interval width (0-1)")
	flag.BoolVar(&cfg.Yearly, "yearly-seasonality", getEnvBool("YEARLY_SEASONALITY", false), "Enable yearly seasonality")
	flag.BoolVar(&cfg.Weekly, "weekly-seasonality", getEnvBool("WEEKLY_SEASONALITY", true), "Enable weekly seasonality")
	flag.BoolVar(&cfg.Daily, "daily-seasonality", getEnvBool("DAILY_SEASONALITY", false), "Enable daily seasonality")

	flag.IntVar(&cfg.Concurrency, "concurrency", getEnvInt("CONCURRENCY", 0), "Max concurrent per-key jobs (0 = available parallelism)")
	flag.DurationVar(&cfg.JobTimeout, "job-timeout", getEnvDuration("JOB_TIMEOUT", 0), "Per-key job timeout (0 = none)")
	flag.StringVar(&cfg.Dedup, "dedup", getEnv("DEDUP", "reject"), "Duplicate timestamp policy: reject or keep-last")

	flag.StringVar(&cfg.Dataset, "dataset", getEnv("DATASET", "default"), "Dataset name for stored snapshots")
	flag.IntVar(&cfg.Periods, "periods", getEnvInt("PERIODS", 30), "Forecast steps past each key's training maximum")
	flag.DurationVar(&cfg.Freq, "freq", getEnvDuration("FREQ", 0), "Forecast step size (0 = infer from training data)")
	flag.BoolVar(&cfg.IncludeHistory, "include-history", getEnvBool("INCLUDE_HISTORY", true), "Include training timestamps in forecasts")
	flag.StringVar(&cfg.FitPolicy, "fit-policy", getEnv("FIT_POLICY", "raise"), "Fit failure policy: raise or skip")
	flag.StringVar(&cfg.PredictPolicy, "predict-policy", getEnv("PREDICT_POLICY", "skip"), "Predict failure policy: raise or skip")

	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", ""), "Data source for the forecast loop: prometheus or http (empty disables the loop)")
	flag.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 24*time.Hour), "Historical window collected from the source")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 5*time.Minute), "Forecast loop interval")
	flag.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", time.Minute), "Source collection resolution")

	flag.Parse()

	cfg.SourceConfig = parseSourceConfig()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	return cfg
}

var datasetNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Engine {
	case "zero", "seasonal", "remote":
	default:
		return fmt.Errorf("invalid engine %q (must be zero, seasonal, or remote)", c.Engine)
	}
	if c.Engine == "remote" && c.EngineURL == "" {
		return fmt.Errorf("--engine-url is required when engine=remote")
	}

	if c.IntervalWidth <= 0 || c.IntervalWidth >= 1 {
		return fmt.Errorf("interval width must be in (0, 1), got %g", c.IntervalWidth)
	}

	switch c.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}

	switch c.Dedup {
	case "reject", "keep-last":
	default:
		return fmt.Errorf("invalid dedup policy %q (must be reject or keep-last)", c.Dedup)
	}

	switch c.FitPolicy {
	case "raise", "skip":
	default:
		return fmt.Errorf("invalid fit policy %q (must be raise or skip)", c.FitPolicy)
	}
	switch c.PredictPolicy {
	case "raise", "skip":
	default:
		return fmt.Errorf("invalid predict policy %q (must be raise or skip)", c.PredictPolicy)
	}

	if !datasetNameRegex.MatchString(c.Dataset) {
		return fmt.Errorf("invalid dataset name %q", c.Dataset)
	}

	if c.Periods < 0 {
		return fmt.Errorf("periods cannot be negative")
	}
	if c.Freq < 0 {
		return fmt.Errorf("freq cannot be negative")
	}

	if c.Source != "" {
		if c.Source != "prometheus" && c.Source != "http" {
			return fmt.Errorf("invalid source %q (must be prometheus or http)", c.Source)
		}
		if c.Window <= 0 {
			return fmt.Errorf("window must be > 0 when a source is configured")
		}
		if c.Interval <= 0 {
			return fmt.Errorf("interval must be > 0 when a source is configured")
		}
	}

	return nil
}

// parseSourceConfig parses SOURCE_* environment variables into a generic
// configuration map. For example SOURCE_QUERY, SOURCE_URL, SOURCE_KEY_LABEL.
// Names are converted to camelCase map keys (SOURCE_KEY_LABEL -> keyLabel).
func parseSourceConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		if len(env) > 7 && env[:7] == "SOURCE_" {
			parts := splitEnv(env)
			if len(parts) == 2 {
				key := toLowerCamelCase(parts[0][7:])
				config[key] = parts[1]
			}
		}
	}

	return config
}

func splitEnv(env string) []string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return []string{env[:i], env[i+1:]}
		}
	}
	return []string{env}
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
