package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the harvester and the read API.
type Config struct {
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	ServerPort  string `mapstructure:"SERVER_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Pipeline
	Workers          int    `mapstructure:"WORKERS"`
	MaxPagesPerSite  int    `mapstructure:"MAX_PAGES_PER_SITE"`
	MaxLinksPerSite  int    `mapstructure:"MAX_LINKS_PER_SITE"`
	MaxRetries       int    `mapstructure:"MAX_RETRIES"`
	PageLoadTimeout  int    `mapstructure:"PAGE_LOAD_TIMEOUT"` // seconds
	BrowserMode      bool   `mapstructure:"BROWSER_MODE"`
	DebugScreenshots bool   `mapstructure:"DEBUG_SCREENSHOTS"`
	RequestsPerSec   float64 `mapstructure:"REQUESTS_PER_SEC"`

	// Run scope
	Domains    []string `mapstructure:"DOMAINS"`
	MaxDomains int      `mapstructure:"MAX_DOMAINS"`

	// Output
	OutputFile string `mapstructure:"OUTPUT_FILE"`
	SaveToDB   bool   `mapstructure:"SAVE_TO_DB"`
}

// PageTimeout returns the page-load timeout as a duration.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeout) * time.Second
}

// Load reads configuration from a .env file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// A missing .env file is fine; production configures through the
	// environment alone.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("WORKERS", 10)
	viper.SetDefault("MAX_PAGES_PER_SITE", 10)
	viper.SetDefault("MAX_LINKS_PER_SITE", 300)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("PAGE_LOAD_TIMEOUT", 30)
	viper.SetDefault("BROWSER_MODE", false)
	viper.SetDefault("DEBUG_SCREENSHOTS", false)
	viper.SetDefault("REQUESTS_PER_SEC", 4.0)
	viper.SetDefault("MAX_DOMAINS", 0)
	viper.SetDefault("OUTPUT_FILE", "listings.json")
	viper.SetDefault("SAVE_TO_DB", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
