// Package config provides configuration loading and defaults for cohortwatch.
package config

import "time"

// DefaultConfigDir is the default location for cohortwatch configuration.
const DefaultConfigDir = "~/.config/cohortwatch"

// DefaultDBName is the filename for the SQLite database.
const DefaultDBName = "cohortwatch.db"

// DefaultConfigFile is the filename for the YAML config.
const DefaultConfigFile = "config.yaml"

// DefaultLogLevel is the zap level used when none is configured.
const DefaultLogLevel = "warn"

// DefaultAnalytics holds the stock analytics thresholds and seeds.
var DefaultAnalytics = Analytics{
	PassThreshold:             4,
	MaxScore:                  7,
	DifficultyDurationCeiling: 240,
	AtRiskThreshold:           4,
	Clusters:                  3,
	TopN:                      10,
	Seed:                      42,
	KMeansInits:               10,
	ForestTrees:               50,
	ForestMaxDepth:            5,
	TestFraction:              0.3,
	LongDurationSeconds:       120,
}

// DefaultCache holds the default result cache settings.
var DefaultCache = Cache{
	TTL: 300 * time.Second,
}

// DefaultWatch holds the default watcher settings.
var DefaultWatch = Watch{
	Interval:            5 * time.Minute,
	ApprovalDropPoints:  10,
	CriticalApprovalPct: 50,
	NotifyLevel:         "warning",
}

// DefaultOutput holds the default output preferences.
var DefaultOutput = Output{
	Color: true,
	Width: 80,
}

// DefaultMetricsAddr is where watch serves Prometheus metrics when enabled.
const DefaultMetricsAddr = ""
