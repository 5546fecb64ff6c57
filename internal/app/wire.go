package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/jchenlabs/marketdrive/internal/blob/s3"
	"github.com/jchenlabs/marketdrive/internal/cache/redis"
	"github.com/jchenlabs/marketdrive/internal/config"
	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/notify"
	"github.com/jchenlabs/marketdrive/internal/server/handler"
	"github.com/jchenlabs/marketdrive/internal/store/postgres"
)

// Dependencies bundles the infrastructure the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function. Fields
// stay nil when the mode does not require that dependency.
type Dependencies struct {
	// Stores
	RunStore     domain.RunStore
	JournalStore domain.JournalStore
	TickStore    domain.TickStore

	// Redis
	SnapshotCache domain.SnapshotCache
	SignalBus     domain.SignalBus
	SessionLock   domain.SessionLock
	RateLimiter   domain.RateLimiter

	// Blob storage
	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Pingers feed the health endpoint.
	Pingers map[string]handler.Pinger
}

// needsPostgres reports whether the mode persists runs.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "archive":
		return true
	default:
		return false
	}
}

// needsRedis reports whether the mode publishes live events.
func needsRedis(mode string) bool {
	return mode == "server"
}

// Wire constructs the concrete dependency implementations for cfg.Mode and
// returns them with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: map[string]handler.Pinger{},
	}

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.RunStore = postgres.NewRunStore(pool)
		deps.JournalStore = postgres.NewJournalStore(pool)
		deps.TickStore = postgres.NewTickStore(pool)
		deps.Pingers["postgres"] = pool.Ping
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.SessionLock = redis.NewSessionLock(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Pingers["s3"] = s3Client.Health

		if deps.RunStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.RunStore, deps.TickStore, deps.JournalStore, logger)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
