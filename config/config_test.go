package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5760, cfg.Premium.HistorySize)
	assert.Equal(t, 720, cfg.Premium.Window)
	assert.Equal(t, 0.0001, cfg.Premium.BaseRate)
	assert.Equal(t, 0.0005, cfg.Premium.RateClamp)
	assert.Equal(t, 0.00055, cfg.Fees.Taker["bybit"])
	assert.Equal(t, 50000.0, cfg.ImpactNotional.ByBase["BTC"])
	assert.Equal(t, 10, cfg.Scan.Workers)
	assert.Len(t, cfg.Scan.FallbackSymbols, 7)
	assert.Equal(t, 10, cfg.Sink.Keep)
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
scan:
  interval: 15s
  universe_size: 5
premium:
  window: 60
exchanges:
  mexc:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 5, cfg.Scan.UniverseSize)
	assert.Equal(t, 60, cfg.Premium.Window)
	assert.True(t, cfg.Exchanges["mexc"].Enabled)
	// untouched sections keep their defaults
	assert.Equal(t, 5760, cfg.Premium.HistorySize)
	assert.True(t, cfg.Exchanges["binance"].Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Scan.Interval, cfg.Scan.Interval)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("SINK_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BYBIT_API_KEY", "k")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "redis", cfg.Sink.Driver)
	assert.Equal(t, "redis:6379", cfg.Sink.Redis.Addr)
	assert.Equal(t, "k", cfg.Exchanges["bybit"].APIKey)
}

func TestValidateClampsInvalidValues(t *testing.T) {
	cfg := Default()
	cfg.Scan.Workers = 0
	cfg.Scan.HistoryLimit = 1
	cfg.Premium.HistorySize = 100
	cfg.Premium.Window = 500
	cfg.Sink.Driver = "cassandra"
	cfg.Sink.Keep = -1

	cfg.Validate()

	assert.Equal(t, 10, cfg.Scan.Workers)
	assert.Equal(t, 2, cfg.Scan.HistoryLimit)
	assert.Equal(t, 100, cfg.Premium.Window)
	assert.Equal(t, "memory", cfg.Sink.Driver)
	assert.Equal(t, 10, cfg.Sink.Keep)
}
