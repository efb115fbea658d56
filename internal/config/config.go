package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
)

// Config is the top-level cohortwatch configuration.
type Config struct {
	DBPath    string    `mapstructure:"db_path"`
	LogLevel  string    `mapstructure:"log_level"`
	Analytics Analytics `mapstructure:"analytics"`
	Cache     Cache     `mapstructure:"cache"`
	Watch     Watch     `mapstructure:"watch"`
	Output    Output    `mapstructure:"output"`
	Metrics   Metrics   `mapstructure:"metrics"`
}

// Analytics holds the thresholds and seeds of the analytics engines.
type Analytics struct {
	PassThreshold             float64 `mapstructure:"pass_threshold"`
	MaxScore                  float64 `mapstructure:"max_score"`
	DifficultyDurationCeiling float64 `mapstructure:"difficulty_duration_ceiling"`
	AtRiskThreshold           float64 `mapstructure:"at_risk_threshold"`
	Clusters                  int     `mapstructure:"clusters"`
	TopN                      int     `mapstructure:"top_n"`
	Seed                      uint64  `mapstructure:"seed"`
	KMeansInits               int     `mapstructure:"kmeans_inits"`
	ForestTrees               int     `mapstructure:"forest_trees"`
	ForestMaxDepth            int     `mapstructure:"forest_max_depth"`
	TestFraction              float64 `mapstructure:"test_fraction"`
	LongDurationSeconds       float64 `mapstructure:"long_duration_seconds"`
}

// Engine converts the analytics settings to the engine configuration.
func (a Analytics) Engine() analyzer.Config {
	return analyzer.Config{
		PassThreshold:             a.PassThreshold,
		MaxScore:                  a.MaxScore,
		DifficultyDurationSeconds: a.DifficultyDurationCeiling,
		Clusters:                  a.Clusters,
		TopN:                      a.TopN,
		Seed:                      a.Seed,
		KMeansInits:               a.KMeansInits,
		ForestTrees:               a.ForestTrees,
		ForestMaxDepth:            a.ForestMaxDepth,
		TestFraction:              a.TestFraction,
		LongDurationSeconds:       a.LongDurationSeconds,
	}
}

// Cache configures the result cache.
type Cache struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Watch configures the cohort watcher.
type Watch struct {
	Interval            time.Duration `mapstructure:"interval"`
	ApprovalDropPoints  float64       `mapstructure:"approval_drop_points"`
	CriticalApprovalPct float64       `mapstructure:"critical_approval_pct"`

	// NotifyLevel is the lowest alert level sent as a desktop
	// notification: info, warning, critical or off.
	NotifyLevel string `mapstructure:"notify_level"`
}

// Output defines output preferences.
type Output struct {
	Color bool `mapstructure:"color"`
	Width int  `mapstructure:"width"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads configuration from the given path (or the default location)
// and returns a Config with all defaults applied. Environment variables
// prefixed COHORTWATCH_ override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", filepath.Join(DefaultConfigDir, DefaultDBName))
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("analytics.pass_threshold", DefaultAnalytics.PassThreshold)
	v.SetDefault("analytics.max_score", DefaultAnalytics.MaxScore)
	v.SetDefault("analytics.difficulty_duration_ceiling", DefaultAnalytics.DifficultyDurationCeiling)
	v.SetDefault("analytics.at_risk_threshold", DefaultAnalytics.AtRiskThreshold)
	v.SetDefault("analytics.clusters", DefaultAnalytics.Clusters)
	v.SetDefault("analytics.top_n", DefaultAnalytics.TopN)
	v.SetDefault("analytics.seed", DefaultAnalytics.Seed)
	v.SetDefault("analytics.kmeans_inits", DefaultAnalytics.KMeansInits)
	v.SetDefault("analytics.forest_trees", DefaultAnalytics.ForestTrees)
	v.SetDefault("analytics.forest_max_depth", DefaultAnalytics.ForestMaxDepth)
	v.SetDefault("analytics.test_fraction", DefaultAnalytics.TestFraction)
	v.SetDefault("analytics.long_duration_seconds", DefaultAnalytics.LongDurationSeconds)
	v.SetDefault("cache.ttl", DefaultCache.TTL)
	v.SetDefault("watch.interval", DefaultWatch.Interval)
	v.SetDefault("watch.approval_drop_points", DefaultWatch.ApprovalDropPoints)
	v.SetDefault("watch.critical_approval_pct", DefaultWatch.CriticalApprovalPct)
	v.SetDefault("watch.notify_level", DefaultWatch.NotifyLevel)
	v.SetDefault("output.color", DefaultOutput.Color)
	v.SetDefault("output.width", DefaultOutput.Width)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)

	v.SetEnvPrefix("cohortwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		v.AddConfigPath(expandPath(DefaultConfigDir))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Read config file if it exists; missing file is not an error.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.DBPath = expandPath(cfg.DBPath)
	return &cfg, nil
}

// DBPath returns the default full path to the SQLite database.
func DBPath() string {
	return filepath.Join(expandPath(DefaultConfigDir), DefaultDBName)
}

// ConfigDir returns the expanded configuration directory.
func ConfigDir() string {
	return expandPath(DefaultConfigDir)
}
