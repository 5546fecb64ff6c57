// Package config defines the top-level configuration for the simulation
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETDRIVE_* environment
// variables.
type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Dataset    DatasetConfig    `toml:"dataset"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// SimulationConfig holds the engine parameters for a session.
type SimulationConfig struct {
	InitialCapital         float64 `toml:"initial_capital"`
	MaxLeverage            float64 `toml:"max_leverage"`
	DefaultLeverage        float64 `toml:"default_leverage"`
	MaxHedges              int     `toml:"max_hedges"`
	PlayerLevel            int     `toml:"player_level"`
	HedgeCostReduction     float64 `toml:"hedge_cost_reduction"`
	HedgeCooldownReduction int     `toml:"hedge_cooldown_reduction"`
	SavePassword           string  `toml:"save_password"`
}

// DatasetConfig identifies the candle series fed to the engine. Key is a
// local path or an "s3://" object key.
type DatasetConfig struct {
	Key string `toml:"key"`
	// AutoAdvance drives the session clock without client tick requests.
	AutoAdvance  bool     `toml:"auto_advance"`
	TickInterval duration `toml:"tick_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitRPS caps command requests per client IP; 0 disables limiting.
	RateLimitRPS int `toml:"rate_limit_rps"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "500ms" or "2s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values from
// config.example.toml.
func Defaults() Config {
	return Config{
		Simulation: SimulationConfig{
			InitialCapital:  10_000,
			MaxLeverage:     3,
			DefaultLeverage: 1,
			MaxHedges:       2,
			PlayerLevel:     1,
		},
		Dataset: DatasetConfig{
			Key:          "data/candles.json",
			AutoAdvance:  false,
			TickInterval: duration{500 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketdrive",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketdrive-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPS: 20,
		},
		Notify: NotifyConfig{
			Events: []string{"run_finished", "drawdown_alert"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"backtest": true,
	"archive":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, backtest, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Simulation
	if c.Simulation.InitialCapital <= 0 {
		errs = append(errs, "simulation: initial_capital must be > 0")
	}
	if c.Simulation.MaxLeverage <= 0 {
		errs = append(errs, "simulation: max_leverage must be > 0")
	}
	if c.Simulation.DefaultLeverage <= 0 {
		errs = append(errs, "simulation: default_leverage must be > 0")
	}
	if c.Simulation.DefaultLeverage > c.Simulation.MaxLeverage {
		errs = append(errs, "simulation: default_leverage must not exceed max_leverage")
	}
	if c.Simulation.MaxHedges < 1 {
		errs = append(errs, "simulation: max_hedges must be >= 1")
	}
	if c.Simulation.PlayerLevel < 1 {
		errs = append(errs, "simulation: player_level must be >= 1")
	}
	if c.Simulation.HedgeCostReduction < 0 {
		errs = append(errs, "simulation: hedge_cost_reduction must be >= 0")
	}
	if c.Simulation.HedgeCooldownReduction < 0 {
		errs = append(errs, "simulation: hedge_cooldown_reduction must be >= 0")
	}

	// Dataset
	if strings.TrimSpace(c.Dataset.Key) == "" {
		errs = append(errs, "dataset: key must not be empty")
	}
	if strings.HasPrefix(c.Dataset.Key, "s3://") && !c.S3.Enabled {
		errs = append(errs, "dataset: key uses s3:// but s3 is not enabled")
	}
	if c.Dataset.AutoAdvance && c.Dataset.TickInterval.Duration <= 0 {
		errs = append(errs, "dataset: tick_interval must be > 0 when auto_advance is set")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}
	if c.Mode == "archive" && !c.S3.Enabled {
		errs = append(errs, "s3: must be enabled for archive mode")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server: rate_limit_rps must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
