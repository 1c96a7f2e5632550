package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Coingecko CoingeckoConfig `mapstructure:"coingecko"`
	Bot       BotConfig       `mapstructure:"bot"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RedditConfig holds Reddit API configuration
type RedditConfig struct {
	AuthURL        string        `mapstructure:"auth_url"`
	APIURL         string        `mapstructure:"api_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Subreddits     []string      `mapstructure:"subreddits"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// CoingeckoConfig holds CoinGecko API configuration
type CoingeckoConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	VsCurrency     string        `mapstructure:"vs_currency"`
	Limit          int           `mapstructure:"limit"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// BotConfig holds tracking and posting behavior configuration
type BotConfig struct {
	TriggerPhrases    []string      `mapstructure:"trigger_phrases"`
	StreamSubmissions bool          `mapstructure:"stream_submissions"`
	NotifyOnDuplicate bool          `mapstructure:"notify_on_duplicate"`
	MaxSubmissionAge  time.Duration `mapstructure:"max_submission_age"`
	ActionCooldown    time.Duration `mapstructure:"action_cooldown"`
	StartInterval     time.Duration `mapstructure:"start_interval"`
	QueueSize         int           `mapstructure:"queue_size"`
	Footer            string        `mapstructure:"footer"`
	TestSubreddit     string        `mapstructure:"test_subreddit"`
}

// TelegramConfig holds operator notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	TestDBPath string `mapstructure:"test_db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("CRYPTO_COUNTER")
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
	// Reddit defaults
	v.SetDefault("reddit.auth_url", "https://www.reddit.com")
	v.SetDefault("reddit.api_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.user_agent", "crypto-counter comment ticker bot")
	v.SetDefault("reddit.stream_interval", "15s")
	v.SetDefault("reddit.timeout", "30s")
	v.SetDefault("reddit.max_retries", 3)
	v.SetDefault("reddit.retry_delay_base", "1s")

	// CoinGecko defaults
	v.SetDefault("coingecko.api_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.vs_currency", "usd")
	v.SetDefault("coingecko.limit", 1000)
	v.SetDefault("coingecko.refresh_ttl", "1h")
	v.SetDefault("coingecko.timeout", "30s")
	v.SetDefault("coingecko.max_retries", 3)
	v.SetDefault("coingecko.retry_delay_base", "1s")

	// Bot defaults
	v.SetDefault("bot.trigger_phrases", []string{"!CryptoMentions", "!CryptoCounter"})
	v.SetDefault("bot.stream_submissions", false)
	v.SetDefault("bot.notify_on_duplicate", true)
	v.SetDefault("bot.max_submission_age", "336h") // two weeks
	v.SetDefault("bot.action_cooldown", "5s")
	v.SetDefault("bot.start_interval", "10s")
	v.SetDefault("bot.queue_size", 256)
	v.SetDefault("bot.footer", "I am a bot. Results may not be accurate.")
	v.SetDefault("bot.test_subreddit", "test")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/crypto_counter_bot.db")
	v.SetDefault("storage.test_db_path", "./data/crypto_counter_bot_test.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
}

// ApplyTestMode switches the configuration to the isolated test store and
// test community.
func (c *Config) ApplyTestMode() {
	c.Storage.DBPath = c.Storage.TestDBPath
	c.Reddit.Subreddits = []string{c.Bot.TestSubreddit}
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Reddit config
	if c.Reddit.AuthURL == "" {
		return fmt.Errorf("reddit.auth_url is required")
	}
	if c.Reddit.APIURL == "" {
		return fmt.Errorf("reddit.api_url is required")
	}
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return fmt.Errorf("reddit.client_id and reddit.client_secret are required")
	}
	if c.Reddit.Username == "" || c.Reddit.Password == "" {
		return fmt.Errorf("reddit.username and reddit.password are required")
	}
	if len(c.Reddit.Subreddits) == 0 {
		return fmt.Errorf("reddit.subreddits must contain at least one subreddit")
	}
	if c.Reddit.StreamInterval < time.Second {
		return fmt.Errorf("reddit.stream_interval must be at least 1 second")
	}

	// Validate CoinGecko config
	if c.Coingecko.APIURL == "" {
		return fmt.Errorf("coingecko.api_url is required")
	}
	if c.Coingecko.Limit < 1 || c.Coingecko.Limit > 10000 {
		return fmt.Errorf("coingecko.limit must be between 1 and 10000")
	}
	if c.Coingecko.RefreshTTL < time.Minute {
		return fmt.Errorf("coingecko.refresh_ttl must be at least 1 minute")
	}

	// Validate Bot config
	if len(c.Bot.TriggerPhrases) == 0 {
		return fmt.Errorf("bot.trigger_phrases must contain at least one phrase")
	}
	if c.Bot.MaxSubmissionAge < time.Hour {
		return fmt.Errorf("bot.max_submission_age must be at least 1 hour")
	}
	if c.Bot.ActionCooldown < time.Second {
		return fmt.Errorf("bot.action_cooldown must be at least 1 second")
	}
	if c.Bot.StartInterval < time.Second {
		return fmt.Errorf("bot.start_interval must be at least 1 second")
	}
	if c.Bot.QueueSize < 1 {
		return fmt.Errorf("bot.queue_size must be at least 1")
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
