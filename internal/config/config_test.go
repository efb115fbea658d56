package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAnalytics, cfg.Analytics)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.Equal(t, DefaultWatch, cfg.Watch)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DBPath(), cfg.DBPath)
	assert.True(t, cfg.Output.Color)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /tmp/cw-test.db
analytics:
  pass_threshold: 5
  clusters: 4
  seed: 7
cache:
  ttl: 1m
watch:
  interval: 30s
  notify_level: "off"
metrics:
  addr: ":9100"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cw-test.db", cfg.DBPath)
	assert.Equal(t, 5.0, cfg.Analytics.PassThreshold)
	assert.Equal(t, 4, cfg.Analytics.Clusters)
	assert.Equal(t, uint64(7), cfg.Analytics.Seed)
	assert.Equal(t, 10, cfg.Analytics.KMeansInits, "unset keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.Equal(t, "off", cfg.Watch.NotifyLevel)
	assert.Equal(t, 50.0, cfg.Watch.CriticalApprovalPct)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)

	eng := cfg.Analytics.Engine()
	assert.Equal(t, 5.0, eng.PassThreshold)
	assert.Equal(t, 240.0, eng.DifficultyDurationSeconds)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analytics: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y.db"), expandPath("~/x/y.db"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}
