package config

import (
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogBufferLines int    `mapstructure:"LOG_BUFFER_LINES"`

	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`

	TaskListLimit int `mapstructure:"TASK_LIST_LIMIT"`
	TaskRunners   int `mapstructure:"TASK_RUNNERS"`
	CrawlWorkers  int `mapstructure:"CRAWL_WORKERS"`
	CrawlTimeout  int `mapstructure:"CRAWL_TIMEOUT"`
	MaxDepth      int `mapstructure:"MAX_DEPTH"`

	FetchMode string `mapstructure:"FETCH_MODE"`
	UserAgent string `mapstructure:"USER_AGENT"`

	DeduplicationHours int `mapstructure:"DEDUPLICATION_HOURS"`
	StaleAfterDays     int `mapstructure:"STALE_AFTER_DAYS"`
	MaxRetries         int `mapstructure:"MAX_RETRIES"`
	RetryWait          int `mapstructure:"RETRY_WAIT"`

	FaviconDir     string `mapstructure:"FAVICON_DIR"`
	FaviconWorkers int    `mapstructure:"FAVICON_WORKERS"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_BUFFER_LINES", 200)
	viper.SetDefault("POSTGRES_URL", "postgres://localhost:5432/novacrawler?sslmode=disable")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("TASK_LIST_LIMIT", 15)
	viper.SetDefault("TASK_RUNNERS", 1)
	viper.SetDefault("CRAWL_WORKERS", 10)
	viper.SetDefault("CRAWL_TIMEOUT", 10) // in seconds
	viper.SetDefault("MAX_DEPTH", 10)
	viper.SetDefault("FETCH_MODE", "http") // http or browser
	viper.SetDefault("USER_AGENT", "NovaCrawler/1.1")
	viper.SetDefault("DEDUPLICATION_HOURS", 48)
	viper.SetDefault("STALE_AFTER_DAYS", 14)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_WAIT", 5) // in seconds
	viper.SetDefault("FAVICON_DIR", "./favicons")
	viper.SetDefault("FAVICON_WORKERS", 10)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
