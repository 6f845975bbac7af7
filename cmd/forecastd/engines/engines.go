// Package engines selects and constructs the forecast engine for forecastd.
package engines

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/hyperprophet/cmd/forecastd/config"
	"github.com/HatiCode/hyperprophet/pkg/engine"
)

// New creates the engine named by the configuration.
func New(cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.Engine {
	case "zero":
		logger.Info("initializing zero engine")
		return &engine.ZeroEngine{}, nil

	case "seasonal":
		logger.Info("initializing seasonal engine",
			"yearly", cfg.Yearly,
			"weekly", cfg.Weekly,
			"daily", cfg.Daily,
			"interval_width", cfg.IntervalWidth,
		)
		return engine.NewSeasonalEngine(), nil

	case "remote":
		logger.Info("initializing remote engine", "url", cfg.EngineURL)
		return engine.NewRemoteEngine(cfg.EngineURL, 30*time.Second), nil

	default:
		return nil, fmt.Errorf("invalid engine type %q", cfg.Engine)
	}
}
