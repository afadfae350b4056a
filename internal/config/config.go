package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Mailbox  MailboxConfig  `mapstructure:"mailbox"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Store    StoreConfig    `mapstructure:"store"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MailboxConfig holds IMAP source configuration
type MailboxConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Folder   string `mapstructure:"folder"`
}

// ExtractConfig holds promo extraction configuration
type ExtractConfig struct {
	Lookahead          int      `mapstructure:"lookahead"`
	MaxItems           int      `mapstructure:"max_items"`
	MaxDiscountPercent int      `mapstructure:"max_discount_percent"`
	LinkHostPatterns   []string `mapstructure:"link_host_patterns"`
}

// EnrichConfig holds product-page enrichment configuration
type EnrichConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	UserAgent           string        `mapstructure:"user_agent"`
	StoreBaseURL        string        `mapstructure:"store_base_url"`
	StoreHostPatterns   []string      `mapstructure:"store_host_patterns"`
	DefaultLocale       string        `mapstructure:"default_locale"`
	TrackingParams      []string      `mapstructure:"tracking_params"`
	TitleMatchThreshold float64       `mapstructure:"title_match_threshold"`
}

// ClassifyConfig holds product classification service configuration
type ClassifyConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIBaseURL string        `mapstructure:"api_base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// StoreConfig holds Postgres deal store configuration
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool               `mapstructure:"enabled"`
	BotToken       string             `mapstructure:"bot_token"`
	ChatRoutes     map[string][]int64 `mapstructure:"chat_routes"`
	MaxRetries     int                `mapstructure:"max_retries"`
	RetryDelayBase time.Duration      `mapstructure:"retry_delay_base"`
}

// LedgerConfig holds dedup ledger persistence configuration
type LedgerConfig struct {
	FilePath    string `mapstructure:"file_path"`
	KeepThreads int    `mapstructure:"keep_threads"`
	KeepItems   int    `mapstructure:"keep_items"`
}

// PipelineConfig holds run scheduling and batching configuration
type PipelineConfig struct {
	RunInterval       time.Duration `mapstructure:"run_interval"`
	MaxThreadsPerRun  int           `mapstructure:"max_threads_per_run"`
	MaxItemsPerThread int           `mapstructure:"max_items_per_thread"`
	Throttle          time.Duration `mapstructure:"throttle"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("DEALSNIPER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Mailbox defaults
	v.SetDefault("mailbox.address", "imap.gmail.com:993")
	v.SetDefault("mailbox.folder", "rcz_nl")

	// Extract defaults
	v.SetDefault("extract.lookahead", 4)
	v.SetDefault("extract.max_items", 9999)
	v.SetDefault("extract.max_discount_percent", 95)
	v.SetDefault("extract.link_host_patterns", []string{
		`rczbikeshop\.com`,
		`rcz[^"']*shop\.com`,
		`go\.mail-coach\.com`,
	})

	// Enrich defaults
	v.SetDefault("enrich.timeout", "20s")
	v.SetDefault("enrich.max_retries", 3)
	v.SetDefault("enrich.retry_delay_base", "400ms")
	v.SetDefault("enrich.user_agent", "Mozilla/5.0 dealsniper")
	v.SetDefault("enrich.store_base_url", "https://www.rczbikeshop.com")
	v.SetDefault("enrich.store_host_patterns", []string{
		`rczbikeshop\.com`,
		`rcz[^"']*shop\.com`,
	})
	v.SetDefault("enrich.default_locale", "fr")
	v.SetDefault("enrich.tracking_params", []string{
		"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
		"mc_cid", "mc_eid", "trk", "ref",
	})
	v.SetDefault("enrich.title_match_threshold", 0.35)

	// Classify defaults
	v.SetDefault("classify.enabled", true)
	v.SetDefault("classify.api_base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("classify.model", "gemini-2.5-flash")
	v.SetDefault("classify.timeout", "30s")
	v.SetDefault("classify.max_retries", 2)

	// Store defaults
	v.SetDefault("store.enabled", true)

	// Telegram defaults
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Ledger defaults
	v.SetDefault("ledger.file_path", "./data/ledger.json")
	v.SetDefault("ledger.keep_threads", 20)
	v.SetDefault("ledger.keep_items", 150)

	// Pipeline defaults
	v.SetDefault("pipeline.run_interval", "15m")
	v.SetDefault("pipeline.max_threads_per_run", 1)
	v.SetDefault("pipeline.max_items_per_thread", 5)
	v.SetDefault("pipeline.throttle", "400ms")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Mailbox config
	if c.Mailbox.Address == "" {
		return fmt.Errorf("mailbox.address is required")
	}
	if c.Mailbox.Username == "" {
		return fmt.Errorf("mailbox.username is required")
	}
	if c.Mailbox.Folder == "" {
		return fmt.Errorf("mailbox.folder is required")
	}

	// Validate Extract config
	if c.Extract.Lookahead < 0 {
		return fmt.Errorf("extract.lookahead must not be negative")
	}
	if c.Extract.MaxItems < 1 {
		return fmt.Errorf("extract.max_items must be at least 1")
	}
	if c.Extract.MaxDiscountPercent < 1 || c.Extract.MaxDiscountPercent > 100 {
		return fmt.Errorf("extract.max_discount_percent must be between 1 and 100")
	}
	if len(c.Extract.LinkHostPatterns) == 0 {
		return fmt.Errorf("extract.link_host_patterns must contain at least one pattern")
	}

	// Validate Enrich config
	if c.Enrich.Timeout < time.Second {
		return fmt.Errorf("enrich.timeout must be at least 1 second")
	}
	if c.Enrich.MaxRetries < 1 {
		return fmt.Errorf("enrich.max_retries must be at least 1")
	}
	if c.Enrich.StoreBaseURL == "" {
		return fmt.Errorf("enrich.store_base_url is required")
	}
	if len(c.Enrich.StoreHostPatterns) == 0 {
		return fmt.Errorf("enrich.store_host_patterns must contain at least one pattern")
	}
	if c.Enrich.TitleMatchThreshold < 0.0 || c.Enrich.TitleMatchThreshold > 1.0 {
		return fmt.Errorf("enrich.title_match_threshold must be between 0.0 and 1.0")
	}

	// Validate Classify config
	if c.Classify.Enabled {
		if c.Classify.APIBaseURL == "" {
			return fmt.Errorf("classify.api_base_url is required when classify is enabled")
		}
		if c.Classify.APIKey == "" {
			return fmt.Errorf("classify.api_key is required when classify is enabled")
		}
		if c.Classify.Model == "" {
			return fmt.Errorf("classify.model is required when classify is enabled")
		}
	}

	// Validate Store config
	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when store is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if len(c.Telegram.ChatRoutes) == 0 {
			return fmt.Errorf("telegram.chat_routes must contain at least one route when telegram is enabled")
		}
	}

	// Validate Ledger config
	if c.Ledger.FilePath == "" {
		return fmt.Errorf("ledger.file_path is required")
	}
	if c.Ledger.KeepThreads < 1 {
		return fmt.Errorf("ledger.keep_threads must be at least 1")
	}
	if c.Ledger.KeepItems < 1 {
		return fmt.Errorf("ledger.keep_items must be at least 1")
	}

	// Validate Pipeline config
	if c.Pipeline.RunInterval < time.Minute {
		return fmt.Errorf("pipeline.run_interval must be at least 1 minute")
	}
	if c.Pipeline.MaxThreadsPerRun < 1 {
		return fmt.Errorf("pipeline.max_threads_per_run must be at least 1")
	}
	if c.Pipeline.MaxItemsPerThread < 1 {
		return fmt.Errorf("pipeline.max_items_per_thread must be at least 1")
	}
	if c.Pipeline.Throttle < 0 {
		return fmt.Errorf("pipeline.throttle must not be negative")
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
