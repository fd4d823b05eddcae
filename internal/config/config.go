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
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlConfig governs the job lifecycle controller and batch processor.
type CrawlConfig struct {
	MaxPagesDefault  int     `mapstructure:"max_pages_default"`
	MaxPagesLimit    int     `mapstructure:"max_pages_limit"`
	BatchSize        int     `mapstructure:"batch_size"`
	InitialBurst     int     `mapstructure:"initial_burst"`
	BatchDelaySec    int     `mapstructure:"batch_delay_seconds"`
	StuckAfterMin    int     `mapstructure:"stuck_after_minutes"`
	ContentCapBytes  int     `mapstructure:"content_cap_bytes"`
	IncompleteBelow  float64 `mapstructure:"incomplete_below"`
	InvocationBudget int     `mapstructure:"invocation_budget_seconds"`
}

// RateLimitConfig bounds calls to the external scrape API.
type RateLimitConfig struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// ScrapeConfig points at the external mapping/scraping service.
type ScrapeConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	CooldownSec    int     `mapstructure:"cooldown_seconds"`
	PaceRPS        float64 `mapstructure:"pace_rps"`
}

// SummarizeConfig configures the LLM summarization client.
type SummarizeConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	ExcerptBytes   int    `mapstructure:"excerpt_bytes"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RedisConfig controls the queue and shared rate-limit counter backend.
// An empty address disables Redis; the controller then runs in degraded
// batch mode and the limiter falls back to its in-process window.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinConns     int    `mapstructure:"min_conns"`
}

// StorageConfig sets the destination for durable file copies.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for job-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LLMSTXT")
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
	v.SetDefault("crawl.max_pages_default", 20)
	v.SetDefault("crawl.max_pages_limit", 100)
	v.SetDefault("crawl.batch_size", 5)
	v.SetDefault("crawl.initial_burst", 5)
	v.SetDefault("crawl.batch_delay_seconds", 2)
	v.SetDefault("crawl.stuck_after_minutes", 10)
	v.SetDefault("crawl.content_cap_bytes", 100_000)
	v.SetDefault("crawl.incomplete_below", 0.8)
	v.SetDefault("crawl.invocation_budget_seconds", 25)
	v.SetDefault("rate_limit.limit", 5)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("scrape.timeout_seconds", 30)
	v.SetDefault("scrape.cooldown_seconds", 10)
	v.SetDefault("scrape.pace_rps", 1.0)
	v.SetDefault("summarize.model", "claude-3-5-haiku-latest")
	v.SetDefault("summarize.max_tokens", 256)
	v.SetDefault("summarize.excerpt_bytes", 4000)
	v.SetDefault("summarize.timeout_seconds", 20)
	v.SetDefault("storage.prefix", "generated")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be > 0")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be > 0")
	}
	if c.Crawl.IncompleteBelow <= 0 || c.Crawl.IncompleteBelow > 1 {
		return fmt.Errorf("crawl.incomplete_below must be in (0, 1]")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// BatchDelay returns the fixed inter-batch delay.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.Crawl.BatchDelaySec) * time.Second
}

// RateLimitWindow returns the sliding-window length.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// ScrapeCooldown returns the pause taken after a rate-limited scrape call.
func (c Config) ScrapeCooldown() time.Duration {
	return time.Duration(c.Scrape.CooldownSec) * time.Second
}

// StuckThreshold returns the age after which a non-terminal job counts as stuck.
func (c Config) StuckThreshold() time.Duration {
	return time.Duration(c.Crawl.StuckAfterMin) * time.Minute
}

// InvocationBudget bounds a single processing invocation.
func (c Config) InvocationBudget() time.Duration {
	return time.Duration(c.Crawl.InvocationBudget) * time.Second
}
