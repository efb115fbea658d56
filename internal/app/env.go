package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/blackwell-systems/cohortwatch/internal/cache"
	"github.com/blackwell-systems/cohortwatch/internal/config"
	"github.com/blackwell-systems/cohortwatch/internal/logging"
	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
	"github.com/blackwell-systems/cohortwatch/internal/store"
)

// env bundles the dependencies shared by commands.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *store.DB
	registry *prometheus.Registry
	orch     *pipeline.Orchestrator
}

// openEnv loads config, opens the store and builds an orchestrator over it.
func openEnv() (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if flagVerbose {
		level = "debug"
	}
	logger, err := logging.New(level, flagVerbose)
	if err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	reg := prometheus.NewRegistry()
	orch := pipeline.New(db, cfg.Analytics.Engine(), cfg.Analytics.AtRiskThreshold,
		pipeline.WithCache(cache.NewTTL(), cfg.Cache.TTL),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
	)

	logger.Debug("environment ready", zap.String("db", cfg.DBPath))
	return &env{cfg: cfg, logger: logger, db: db, registry: reg, orch: orch}, nil
}

// Close releases the store and flushes the logger.
func (e *env) Close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}

// passThreshold returns the configured pass score.
func (e *env) passThreshold() float64 {
	return e.cfg.Analytics.PassThreshold
}

// format resolves the output format, letting --json override --format.
func format(f string) string {
	if flagJSON {
		return "json"
	}
	return f
}
