// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	PDFFinder PDFFinderConfig `mapstructure:"pdf_finder"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	RequestTimeoutS int `mapstructure:"request_timeout_seconds"`
	ShutdownGraceS  int `mapstructure:"shutdown_grace_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScrapeConfig governs the fetch-and-rank pipeline.
type ScrapeConfig struct {
	Workers          int `mapstructure:"workers"`
	QueueDepth       int `mapstructure:"queue_depth"`
	MaxPapersDefault int `mapstructure:"max_papers_default"`
	MaxPapersLimit   int `mapstructure:"max_papers_limit"`
	FetchBuffer      int `mapstructure:"fetch_buffer"`
	PageSize         int `mapstructure:"page_size"`
	SearchLimit      int `mapstructure:"search_limit"`
}

// UpstreamConfig configures the publication source client.
type UpstreamConfig struct {
	BaseURL          string  `mapstructure:"base_url"`
	APIKey           string  `mapstructure:"api_key"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	RatePerSecond    float64 `mapstructure:"rate_per_second"`
	RateBurst        int     `mapstructure:"rate_burst"`
	CacheTTLMinutes  int     `mapstructure:"cache_ttl_minutes"`
	CacheMaxStaleHrs int     `mapstructure:"cache_max_stale_hours"`
}

// JobsConfig controls job lifecycle housekeeping.
type JobsConfig struct {
	StallTimeoutMin  int `mapstructure:"stall_timeout_minutes"`
	RetentionHours   int `mapstructure:"retention_hours"`
	HousekeepPeriodS int `mapstructure:"housekeep_period_seconds"`
}

// PDFFinderConfig configures the headless PDF discovery subsystem.
type PDFFinderConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig sets where report artifacts are persisted.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational job store.
type DBConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for job completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CITESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_grace_seconds", 15)
	v.SetDefault("scrape.workers", 4)
	v.SetDefault("scrape.queue_depth", 64)
	v.SetDefault("scrape.max_papers_default", 10)
	v.SetDefault("scrape.max_papers_limit", 100)
	v.SetDefault("scrape.fetch_buffer", 40)
	v.SetDefault("scrape.page_size", 100)
	v.SetDefault("scrape.search_limit", 5)
	v.SetDefault("upstream.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("upstream.timeout_seconds", 20)
	v.SetDefault("upstream.max_retries", 5)
	v.SetDefault("upstream.backoff_initial_ms", 500)
	v.SetDefault("upstream.backoff_max_ms", 60000)
	v.SetDefault("upstream.rate_per_second", 1.0)
	v.SetDefault("upstream.rate_burst", 3)
	v.SetDefault("upstream.cache_ttl_minutes", 720)
	v.SetDefault("upstream.cache_max_stale_hours", 24)
	v.SetDefault("jobs.stall_timeout_minutes", 15)
	v.SetDefault("jobs.retention_hours", 24)
	v.SetDefault("jobs.housekeep_period_seconds", 60)
	v.SetDefault("pdf_finder.enabled", false)
	v.SetDefault("pdf_finder.max_parallel", 1)
	v.SetDefault("pdf_finder.nav_timeout_seconds", 25)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local_dir", "artifacts")
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.Workers <= 0 {
		return fmt.Errorf("scrape.workers must be > 0")
	}
	if c.Scrape.MaxPapersDefault <= 0 || c.Scrape.MaxPapersDefault > c.Scrape.MaxPapersLimit {
		return fmt.Errorf("scrape.max_papers_default must be in (0, %d]", c.Scrape.MaxPapersLimit)
	}
	if c.Scrape.PageSize <= 0 {
		return fmt.Errorf("scrape.page_size must be > 0")
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be > 0")
	}
	if c.Upstream.RatePerSecond <= 0 {
		return fmt.Errorf("upstream.rate_per_second must be > 0")
	}
	if c.PDFFinder.Enabled && c.PDFFinder.MaxParallel <= 0 {
		return fmt.Errorf("pdf_finder.max_parallel must be > 0 when enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// UpstreamTimeout converts the upstream timeout config into a duration.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// CacheTTL returns the configured response cache TTL.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Upstream.CacheTTLMinutes) * time.Minute
}

// CacheMaxStale returns the max-stale window for expired cache fallback.
func (c Config) CacheMaxStale() time.Duration {
	return time.Duration(c.Upstream.CacheMaxStaleHrs) * time.Hour
}

// StallTimeout returns how long a running job may go without progress
// before the watchdog fails it.
func (c Config) StallTimeout() time.Duration {
	return time.Duration(c.Jobs.StallTimeoutMin) * time.Minute
}

// Retention returns how long finished jobs are kept before pruning.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Jobs.RetentionHours) * time.Hour
}
