// Package config defines the top-level configuration for the analytics
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYSWAN_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Scan       ScanConfig       `toml:"scan"`
	Moves      MovesConfig      `toml:"moves"`
	Collector  CollectorConfig  `toml:"collector"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
	WsHost    string `toml:"ws_host"`
	// RateLimit bounds outbound CLOB requests per RateWindow across all
	// processes sharing the Redis limiter.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// S3Config holds S3-compatible object storage parameters for the snapshot
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ScanConfig parameterizes the black-swan reversal scan.
type ScanConfig struct {
	// OffsetsDays are lookback offsets before resolution, strictly
	// decreasing toward resolution.
	OffsetsDays     []int   `toml:"offsets_days"`
	EarlyThreshold  float64 `toml:"early_threshold"`
	FinalThreshold  float64 `toml:"final_threshold"`
	MinVolumeUSD    float64 `toml:"min_volume_usd"`
	MaxLookbackDays int     `toml:"max_lookback_days"`
	BatchSize       int     `toml:"batch_size"`
	MaxRetries      int     `toml:"max_retries"`
	RetryBackoff    duration `toml:"retry_backoff"`
	CacheTTL        duration `toml:"cache_ttl"`
	CandidateLimit  int      `toml:"candidate_limit"`
	// Source selects where point samples come from: "clob" (live-query
	// against the upstream price history API) or "store" (local snapshots).
	Source string `toml:"source"`
}

// MovesConfig parameterizes the large-move detector.
type MovesConfig struct {
	WindowHours     int     `toml:"window_hours"`
	ThresholdPoints float64 `toml:"threshold_points"`
	ScanInterval    duration `toml:"scan_interval"`
}

// CollectorConfig holds data-collection parameters.
type CollectorConfig struct {
	Enabled             bool     `toml:"enabled"`
	Interval            duration `toml:"interval"`
	MinVolumeUSD        float64  `toml:"min_volume_usd"`
	MaxDaysToResolution int      `toml:"max_days_to_resolution"`
	MarketLimit         int      `toml:"market_limit"`
	LiveFeedEnabled     bool     `toml:"live_feed_enabled"`
}

// ArchiveConfig holds snapshot cold-storage parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps requests per client IP per RateWindow; 0 disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:  "https://gamma-api.polymarket.com",
			ClobHost:   "https://clob.polymarket.com",
			WsHost:     "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			RateLimit:  50,
			RateWindow: duration{10 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polymarket_analytics",
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
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyswan-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Scan: ScanConfig{
			OffsetsDays:     []int{14, 7, 3},
			EarlyThreshold:  0.70,
			FinalThreshold:  0.40,
			MinVolumeUSD:    100_000,
			MaxLookbackDays: 60,
			BatchSize:       20,
			MaxRetries:      3,
			RetryBackoff:    duration{500 * time.Millisecond},
			CacheTTL:        duration{30 * time.Minute},
			CandidateLimit:  200,
			Source:          "clob",
		},
		Moves: MovesConfig{
			WindowHours:     24,
			ThresholdPoints: 15,
			ScanInterval:    duration{15 * time.Minute},
		},
		Collector: CollectorConfig{
			Enabled:             true,
			Interval:            duration{time.Hour},
			MinVolumeUSD:        100_000,
			MaxDaysToResolution: 30,
			MarketLimit:         500,
			LiveFeedEnabled:     false,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"black_swan_found", "large_move", "collector_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"collect": true,
	"scan":    true,
	"detect":  true,
	"serve":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validScanSources enumerates the accepted values for Scan.Source.
var validScanSources = map[string]bool{
	"clob":  true,
	"store": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: collect, scan, detect, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.RateLimit < 1 {
		errs = append(errs, "polymarket: rate_limit must be >= 1")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archiving is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Scan — mirror the WindowSpec invariants so a bad config fails at boot.
	if len(c.Scan.OffsetsDays) == 0 {
		errs = append(errs, "scan: offsets_days must not be empty")
	}
	for i := 1; i < len(c.Scan.OffsetsDays); i++ {
		if c.Scan.OffsetsDays[i] >= c.Scan.OffsetsDays[i-1] {
			errs = append(errs, "scan: offsets_days must strictly decrease toward resolution")
			break
		}
	}
	if c.Scan.EarlyThreshold <= 0 || c.Scan.EarlyThreshold > 1 {
		errs = append(errs, fmt.Sprintf("scan: early_threshold must be in (0,1], got %v", c.Scan.EarlyThreshold))
	}
	if c.Scan.FinalThreshold <= 0 || c.Scan.FinalThreshold > 1 {
		errs = append(errs, fmt.Sprintf("scan: final_threshold must be in (0,1], got %v", c.Scan.FinalThreshold))
	}
	if c.Scan.BatchSize < 1 {
		errs = append(errs, "scan: batch_size must be >= 1")
	}
	if c.Scan.MaxRetries < 0 {
		errs = append(errs, "scan: max_retries must be >= 0")
	}
	if c.Scan.MaxLookbackDays < 1 {
		errs = append(errs, "scan: max_lookback_days must be >= 1")
	}
	if !validScanSources[strings.ToLower(c.Scan.Source)] {
		errs = append(errs, fmt.Sprintf("scan: unknown source %q (valid: clob, store)", c.Scan.Source))
	}

	// Moves
	if c.Moves.WindowHours < 1 {
		errs = append(errs, "moves: window_hours must be >= 1")
	}
	if c.Moves.ThresholdPoints <= 0 {
		errs = append(errs, "moves: threshold_points must be > 0")
	}

	// Collector
	if c.Collector.Enabled {
		if c.Collector.Interval.Duration < time.Minute {
			errs = append(errs, "collector: interval must be >= 1m")
		}
		if c.Collector.MarketLimit < 1 {
			errs = append(errs, "collector: market_limit must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
