package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "replay" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"non-positive capital", func(c *Config) { c.Simulation.InitialCapital = 0 }, "initial_capital"},
		{"leverage above ceiling", func(c *Config) { c.Simulation.DefaultLeverage = 5 }, "must not exceed max_leverage"},
		{"zero hedges", func(c *Config) { c.Simulation.MaxHedges = 0 }, "max_hedges"},
		{"empty dataset key", func(c *Config) { c.Dataset.Key = " " }, "dataset: key"},
		{"s3 key without s3", func(c *Config) { c.Dataset.Key = "s3://bucket/candles.json" }, "s3 is not enabled"},
		{
			"auto advance without interval",
			func(c *Config) { c.Dataset.AutoAdvance = true; c.Dataset.TickInterval = duration{} },
			"tick_interval",
		},
		{"bad postgres port", func(c *Config) { c.Postgres.Port = 70000 }, "postgres: port"},
		{
			"pool min above max",
			func(c *Config) { c.Postgres.PoolMinConns = 20 },
			"pool_min_conns",
		},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
		{
			"s3 enabled without bucket",
			func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "" },
			"s3: bucket",
		},
		{"archive needs s3", func(c *Config) { c.Mode = "archive" }, "archive mode"},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitRPS = -1 }, "rate_limit_rps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Server.Port = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "server: port")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "backtest"

[simulation]
initial_capital = 25000.0
max_leverage = 5.0

[dataset]
key = "data/spy.json"
auto_advance = true
tick_interval = "2s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "backtest", cfg.Mode)
	assert.Equal(t, 25_000.0, cfg.Simulation.InitialCapital)
	assert.Equal(t, 5.0, cfg.Simulation.MaxLeverage)
	assert.Equal(t, "data/spy.json", cfg.Dataset.Key)
	assert.True(t, cfg.Dataset.AutoAdvance)
	assert.Equal(t, 2*time.Second, cfg.Dataset.TickInterval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[postgres]
password = "from-file"

[redis]
addr = "file:6379"
`)

	t.Setenv("MARKETDRIVE_POSTGRES_PASSWORD", "from-env")
	t.Setenv("MARKETDRIVE_REDIS_ADDR", "env:6379")
	t.Setenv("MARKETDRIVE_SERVER_PORT", "9999")
	t.Setenv("MARKETDRIVE_S3_ENABLED", "true")
	t.Setenv("MARKETDRIVE_DATASET_TICK_INTERVAL", "250ms")
	t.Setenv("MARKETDRIVE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Postgres.Password)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Dataset.TickInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestEnvOverrideIgnoresUnparseableValues(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080
`)

	t.Setenv("MARKETDRIVE_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
