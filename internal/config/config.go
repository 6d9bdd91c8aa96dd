package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MENTION_ORACLE_KALSHI_API_KEY.
const EnvPrefix = "MENTION_ORACLE"

// Config represents the complete application configuration
type Config struct {
	Kalshi      KalshiConfig      `mapstructure:"kalshi"`
	Transcripts TranscriptsConfig `mapstructure:"transcripts"`
	Research    ResearchConfig    `mapstructure:"research"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// KalshiConfig holds Kalshi market-data API configuration
type KalshiConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	APIKey       string        `mapstructure:"api_key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second
	Burst        int           `mapstructure:"burst"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PageLimit    int           `mapstructure:"page_limit"`
	MaxMarkets   int           `mapstructure:"max_markets"` // 0 = no cap
}

// TranscriptsConfig holds earnings-transcript provider configuration
type TranscriptsConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	APIKey         string        `mapstructure:"api_key"`
	QuartersBack   int           `mapstructure:"quarters_back"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// ResearchConfig holds opportunity ranking configuration
type ResearchConfig struct {
	ContextWindow  int           `mapstructure:"context_window"`
	MinEdge        float64       `mapstructure:"min_edge"`
	MinQuarters    int           `mapstructure:"min_quarters"`
	TopK           int           `mapstructure:"top_k"`
	Bankroll       float64       `mapstructure:"bankroll"`
	NotifyCooldown time.Duration `mapstructure:"notify_cooldown"` // suppress repeat alerts for the same market side
	KeepRuns       int           `mapstructure:"keep_runs"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds SQLite persistence configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MaxMarkets int    `mapstructure:"max_markets"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from a .env file (if present), the config file and environment
// variables. An empty path skips the config file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Kalshi defaults
	v.SetDefault("kalshi.api_url", "https://api.elections.kalshi.com/trade-api/v2")
	v.SetDefault("kalshi.api_key", "")
	v.SetDefault("kalshi.poll_interval", "30m")
	v.SetDefault("kalshi.timeout", "30s")
	v.SetDefault("kalshi.rate_limit", 5.0)
	v.SetDefault("kalshi.burst", 2)
	v.SetDefault("kalshi.max_retries", 3)
	v.SetDefault("kalshi.page_limit", 200)
	v.SetDefault("kalshi.max_markets", 0)

	// Transcript defaults
	v.SetDefault("transcripts.api_url", "https://api.api-ninjas.com/v1")
	v.SetDefault("transcripts.api_key", "")
	v.SetDefault("transcripts.quarters_back", 8)
	v.SetDefault("transcripts.timeout", "30s")
	v.SetDefault("transcripts.rate_limit", 2.0)
	v.SetDefault("transcripts.burst", 1)
	v.SetDefault("transcripts.max_concurrency", 4)
	v.SetDefault("transcripts.max_retries", 3)
	v.SetDefault("transcripts.cache_ttl", "168h")

	// Research defaults
	v.SetDefault("research.context_window", 150)
	v.SetDefault("research.min_edge", 0.05)
	v.SetDefault("research.min_quarters", 4)
	v.SetDefault("research.top_k", 10)
	v.SetDefault("research.bankroll", 1000.0)
	v.SetDefault("research.notify_cooldown", "6h")
	v.SetDefault("research.keep_runs", 100)

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/mention-oracle.db")
	v.SetDefault("storage.max_markets", 5000)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9108")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Kalshi config
	if c.Kalshi.APIURL == "" {
		return fmt.Errorf("kalshi.api_url is required")
	}
	if c.Kalshi.PollInterval < 1*time.Minute {
		return fmt.Errorf("kalshi.poll_interval must be at least 1 minute")
	}
	if c.Kalshi.RateLimit <= 0 {
		return fmt.Errorf("kalshi.rate_limit must be positive")
	}
	if c.Kalshi.PageLimit < 1 || c.Kalshi.PageLimit > 1000 {
		return fmt.Errorf("kalshi.page_limit must be between 1 and 1000")
	}
	if c.Kalshi.MaxMarkets < 0 {
		return fmt.Errorf("kalshi.max_markets must not be negative")
	}

	// Validate Transcripts config
	if c.Transcripts.APIURL == "" {
		return fmt.Errorf("transcripts.api_url is required")
	}
	if c.Transcripts.APIKey == "" {
		return fmt.Errorf("transcripts.api_key is required")
	}
	if c.Transcripts.QuartersBack < 1 || c.Transcripts.QuartersBack > 40 {
		return fmt.Errorf("transcripts.quarters_back must be between 1 and 40")
	}
	if c.Transcripts.RateLimit <= 0 {
		return fmt.Errorf("transcripts.rate_limit must be positive")
	}
	if c.Transcripts.MaxConcurrency < 1 {
		return fmt.Errorf("transcripts.max_concurrency must be at least 1")
	}
	if c.Transcripts.CacheTTL < 0 {
		return fmt.Errorf("transcripts.cache_ttl must not be negative")
	}

	// Validate Research config
	if c.Research.ContextWindow < 0 {
		return fmt.Errorf("research.context_window must not be negative")
	}
	if c.Research.MinEdge < 0.0 || c.Research.MinEdge > 1.0 {
		return fmt.Errorf("research.min_edge must be between 0.0 and 1.0")
	}
	if c.Research.MinQuarters < 1 {
		return fmt.Errorf("research.min_quarters must be at least 1")
	}
	if c.Research.TopK < 1 {
		return fmt.Errorf("research.top_k must be at least 1")
	}
	if c.Research.Bankroll <= 0 {
		return fmt.Errorf("research.bankroll must be positive")
	}
	if c.Research.NotifyCooldown < 0 {
		return fmt.Errorf("research.notify_cooldown must not be negative")
	}
	if c.Research.KeepRuns < 1 {
		return fmt.Errorf("research.keep_runs must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxMarkets < 1 {
		return fmt.Errorf("storage.max_markets must be at least 1")
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
