package config

import (
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	PostgresURL      string  `mapstructure:"POSTGRES_URL"`
	RedisAddr        string  `mapstructure:"REDIS_ADDR"`
	ServerPort       string  `mapstructure:"SERVER_PORT"`
	FetchRetries     int     `mapstructure:"FETCH_RETRIES"`
	FetchTimeoutSec  int     `mapstructure:"FETCH_TIMEOUT"`
	FetchDelayMS     int     `mapstructure:"FETCH_DELAY_MS"`
	ScrapeRatePerSec float64 `mapstructure:"SCRAPE_RATE_PER_SEC"`
	SkipUnchanged    bool    `mapstructure:"SKIP_UNCHANGED"`
	LockTTLMinutes   int     `mapstructure:"LOCK_TTL_MINUTES"`
	TriggerEnabled   bool    `mapstructure:"TRIGGER_ENABLED"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	// This allows configuration purely through environment variables in production
	_ = viper.ReadInConfig()

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("FETCH_RETRIES", 3)
	viper.SetDefault("FETCH_TIMEOUT", 30) // in seconds
	viper.SetDefault("FETCH_DELAY_MS", 1000)
	viper.SetDefault("SCRAPE_RATE_PER_SEC", 0.5) // one request per 2s per scraper
	viper.SetDefault("SKIP_UNCHANGED", false)
	viper.SetDefault("LOCK_TTL_MINUTES", 10)
	viper.SetDefault("TRIGGER_ENABLED", true)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
