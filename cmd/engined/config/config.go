// Package config provides configuration parsing for engined.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence. The Config struct contains all runtime configuration
// needed by the compute service.
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
	"time"
)

type Config struct {
	Listen     string
	Engine     string
	MaxPoints  int
	JobTimeout time.Duration
	LogFormat  string
	LogLevel   string
}

func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address")
	flag.StringVar(&cfg.Engine, "engine", getEnv("ENGINE", "seasonal"), "Compute engine (zero|seasonal)")
	flag.IntVar(&cfg.MaxPoints, "max-points", getEnvInt("MAX_POINTS", 100000), "Max training points per job")
	flag.DurationVar(&cfg.JobTimeout, "job-timeout", getEnvDuration("JOB_TIMEOUT", 30*time.Second), "Per-job compute timeout")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format (text|json)")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")

	flag.Parse()

	if cfg.Engine != "zero" && cfg.Engine != "seasonal" {
		fmt.Fprintf(os.Stderr, "Error: invalid engine %q (must be zero or seasonal)\n", cfg.Engine)
		flag.Usage()
		os.Exit(1)
	}

	return cfg
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
