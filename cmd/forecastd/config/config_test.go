package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Listen:        ":8081",
		Storage:       "memory",
		Engine:        "seasonal",
		IntervalWidth: 0.8,
		Dedup:         "reject",
		Dataset:       "orders",
		Periods:       30,
		FitPolicy:     "raise",
		PredictPolicy: "skip",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero engine", func(c *Config) { c.Engine = "zero" }, false},
		{"remote engine with url", func(c *Config) { c.Engine = "remote"; c.EngineURL = "http://engined:8082/v1/jobs" }, false},
		{"remote engine without url", func(c *Config) { c.Engine = "remote" }, true},
		{"unknown engine", func(c *Config) { c.Engine = "prophet" }, true},
		{"bad interval width low", func(c *Config) { c.IntervalWidth = 0 }, true},
		{"bad interval width high", func(c *Config) { c.IntervalWidth = 1 }, true},
		{"unknown storage", func(c *Config) { c.Storage = "postgres" }, true},
		{"keep-last dedup", func(c *Config) { c.Dedup = "keep-last" }, false},
		{"unknown dedup", func(c *Config) { c.Dedup = "first" }, true},
		{"unknown fit policy", func(c *Config) { c.FitPolicy = "ignore" }, true},
		{"unknown predict policy", func(c *Config) { c.PredictPolicy = "ignore" }, true},
		{"bad dataset name", func(c *Config) { c.Dataset = "../etc" }, true},
		{"negative periods", func(c *Config) { c.Periods = -1 }, true},
		{"negative freq", func(c *Config) { c.Freq = -time.Hour }, true},
		{"source without window", func(c *Config) { c.Source = "prometheus"; c.Interval = time.Minute }, true},
		{"source without interval", func(c *Config) { c.Source = "prometheus"; c.Window = time.Hour }, true},
		{"valid source", func(c *Config) { c.Source = "http"; c.Window = time.Hour; c.Interval = time.Minute }, false},
		{"unknown source", func(c *Config) { c.Source = "kafka"; c.Window = time.Hour; c.Interval = time.Minute }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"QUERY", "query"},
		{"KEY_LABEL", "keyLabel"},
		{"VALUE_PATH", "valuePath"},
		{"TIMESTAMP_FORMAT", "timestampFormat"},
		{"URL", "url"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toLowerCamelCase(tt.in); got != tt.want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSourceConfig(t *testing.T) {
	t.Setenv("SOURCE_QUERY", "sum(rate(http_requests_total[1m]))")
	t.Setenv("SOURCE_KEY_LABEL", "pod")

	config := parseSourceConfig()
	if config["query"] != "sum(rate(http_requests_total[1m]))" {
		t.Errorf("query = %q", config["query"])
	}
	if config["keyLabel"] != "pod" {
		t.Errorf("keyLabel = %q", config["keyLabel"])
	}
}
