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
// built-in defaults, applies POLYSWAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known POLYSWAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYSWAN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "POLYSWAN_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYSWAN_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.RateLimit, "POLYSWAN_POLYMARKET_RATE_LIMIT")
	setDuration(&cfg.Polymarket.RateWindow, "POLYSWAN_POLYMARKET_RATE_WINDOW")

	// ── Database ──
	setStr(&cfg.Database.DSN, "POLYSWAN_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "POLYSWAN_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "POLYSWAN_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POLYSWAN_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POLYSWAN_DATABASE_NAME")
	setStr(&cfg.Database.User, "POLYSWAN_DATABASE_USER")
	setStr(&cfg.Database.Password, "POLYSWAN_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POLYSWAN_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "POLYSWAN_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POLYSWAN_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POLYSWAN_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYSWAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSWAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSWAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYSWAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYSWAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYSWAN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYSWAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYSWAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYSWAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYSWAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYSWAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYSWAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYSWAN_S3_FORCE_PATH_STYLE")

	// ── Scan ──
	setFloat64(&cfg.Scan.EarlyThreshold, "POLYSWAN_SCAN_EARLY_THRESHOLD")
	setFloat64(&cfg.Scan.FinalThreshold, "POLYSWAN_SCAN_FINAL_THRESHOLD")
	setFloat64(&cfg.Scan.MinVolumeUSD, "POLYSWAN_SCAN_MIN_VOLUME_USD")
	setInt(&cfg.Scan.MaxLookbackDays, "POLYSWAN_SCAN_MAX_LOOKBACK_DAYS")
	setInt(&cfg.Scan.BatchSize, "POLYSWAN_SCAN_BATCH_SIZE")
	setInt(&cfg.Scan.MaxRetries, "POLYSWAN_SCAN_MAX_RETRIES")
	setDuration(&cfg.Scan.RetryBackoff, "POLYSWAN_SCAN_RETRY_BACKOFF")
	setDuration(&cfg.Scan.CacheTTL, "POLYSWAN_SCAN_CACHE_TTL")
	setInt(&cfg.Scan.CandidateLimit, "POLYSWAN_SCAN_CANDIDATE_LIMIT")
	setStr(&cfg.Scan.Source, "POLYSWAN_SCAN_SOURCE")
	setIntSlice(&cfg.Scan.OffsetsDays, "POLYSWAN_SCAN_OFFSETS_DAYS")

	// ── Moves ──
	setInt(&cfg.Moves.WindowHours, "POLYSWAN_MOVES_WINDOW_HOURS")
	setFloat64(&cfg.Moves.ThresholdPoints, "POLYSWAN_MOVES_THRESHOLD_POINTS")
	setDuration(&cfg.Moves.ScanInterval, "POLYSWAN_MOVES_SCAN_INTERVAL")

	// ── Collector ──
	setBool(&cfg.Collector.Enabled, "POLYSWAN_COLLECTOR_ENABLED")
	setDuration(&cfg.Collector.Interval, "POLYSWAN_COLLECTOR_INTERVAL")
	setFloat64(&cfg.Collector.MinVolumeUSD, "POLYSWAN_COLLECTOR_MIN_VOLUME_USD")
	setInt(&cfg.Collector.MaxDaysToResolution, "POLYSWAN_COLLECTOR_MAX_DAYS_TO_RESOLUTION")
	setInt(&cfg.Collector.MarketLimit, "POLYSWAN_COLLECTOR_MARKET_LIMIT")
	setBool(&cfg.Collector.LiveFeedEnabled, "POLYSWAN_COLLECTOR_LIVE_FEED_ENABLED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POLYSWAN_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "POLYSWAN_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "POLYSWAN_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYSWAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYSWAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYSWAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYSWAN_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYSWAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYSWAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYSWAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYSWAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYSWAN_MODE")
	setStr(&cfg.LogLevel, "POLYSWAN_LOG_LEVEL")
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

func setIntSlice(dst *[]int, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		parsed := make([]int, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				return
			}
			parsed = append(parsed, n)
		}
		if len(parsed) > 0 {
			*dst = parsed
		}
	}
}
