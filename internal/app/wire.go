package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/lukaskaminskis/polymarket-analytics/internal/blob/s3"
	"github.com/lukaskaminskis/polymarket-analytics/internal/cache/redis"
	"github.com/lukaskaminskis/polymarket-analytics/internal/config"
	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
	"github.com/lukaskaminskis/polymarket-analytics/internal/notify"
	"github.com/lukaskaminskis/polymarket-analytics/internal/platform/polymarket"
	"github.com/lukaskaminskis/polymarket-analytics/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// API clients
	Gamma *polymarket.GammaClient
	Clob  *polymarket.ClobClient

	// Stores
	MarketStore     domain.MarketStore
	SnapshotStore   domain.SnapshotStore
	MoveStore       domain.MoveStore
	ResolutionStore domain.ResolutionStore

	// Redis-backed coordination
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SampleCache domain.SampleCache

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Notifications
	Notifier *notify.Notifier

	// Raw clients, kept for health checks.
	PGClient    *postgres.Client
	RedisClient *redis.Client
}

// needsPostgres returns true when the mode requires a database connection.
// The scan mode can run storeless as long as samples come from the CLOB API.
func needsPostgres(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "collect", "detect", "serve", "full":
		return true
	case "scan":
		return strings.ToLower(cfg.Scan.Source) == "store"
	default:
		return false
	}
}

// needsS3 returns true when the mode runs the archiver or serves archived
// snapshots back out.
func needsS3(cfg *config.Config) bool {
	if !cfg.Archive.Enabled {
		return false
	}
	switch strings.ToLower(cfg.Mode) {
	case "collect", "serve", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Gamma: polymarket.NewGammaClient(cfg.Polymarket.GammaHost),
		Clob:  polymarket.NewClobClient(cfg.Polymarket.ClobHost),
	}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PGClient = pgClient
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
		deps.MoveStore = postgres.NewMoveStore(pool)
		deps.ResolutionStore = postgres.NewResolutionStore(pool)
	}

	// --- Redis ---
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

	deps.RedisClient = redisClient
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SampleCache = redis.NewSampleCache(redisClient)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
