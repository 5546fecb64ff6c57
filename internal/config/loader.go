package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETDRIVE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETDRIVE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Simulation ──
	setFloat64(&cfg.Simulation.InitialCapital, "MARKETDRIVE_SIMULATION_INITIAL_CAPITAL")
	setFloat64(&cfg.Simulation.MaxLeverage, "MARKETDRIVE_SIMULATION_MAX_LEVERAGE")
	setFloat64(&cfg.Simulation.DefaultLeverage, "MARKETDRIVE_SIMULATION_DEFAULT_LEVERAGE")
	setInt(&cfg.Simulation.MaxHedges, "MARKETDRIVE_SIMULATION_MAX_HEDGES")
	setInt(&cfg.Simulation.PlayerLevel, "MARKETDRIVE_SIMULATION_PLAYER_LEVEL")
	setFloat64(&cfg.Simulation.HedgeCostReduction, "MARKETDRIVE_SIMULATION_HEDGE_COST_REDUCTION")
	setInt(&cfg.Simulation.HedgeCooldownReduction, "MARKETDRIVE_SIMULATION_HEDGE_COOLDOWN_REDUCTION")
	setStr(&cfg.Simulation.SavePassword, "MARKETDRIVE_SIMULATION_SAVE_PASSWORD")

	// ── Dataset ──
	setStr(&cfg.Dataset.Key, "MARKETDRIVE_DATASET_KEY")
	setBool(&cfg.Dataset.AutoAdvance, "MARKETDRIVE_DATASET_AUTO_ADVANCE")
	setDuration(&cfg.Dataset.TickInterval, "MARKETDRIVE_DATASET_TICK_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETDRIVE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETDRIVE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETDRIVE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETDRIVE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETDRIVE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETDRIVE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETDRIVE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETDRIVE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETDRIVE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETDRIVE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETDRIVE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETDRIVE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETDRIVE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETDRIVE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETDRIVE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETDRIVE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MARKETDRIVE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MARKETDRIVE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETDRIVE_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETDRIVE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETDRIVE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETDRIVE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETDRIVE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETDRIVE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETDRIVE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETDRIVE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETDRIVE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitRPS, "MARKETDRIVE_SERVER_RATE_LIMIT_RPS")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETDRIVE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETDRIVE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETDRIVE_MODE")
	setStr(&cfg.LogLevel, "MARKETDRIVE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
