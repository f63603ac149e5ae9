// Package config handles application configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Defaults for everything except the bot token, which must be provided.
const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	DefaultFearGreedURL = "https://api.alternative.me/fng/"
	DefaultRegistryPath = "./notifications.db"
	DefaultTimezone     = "Europe/Madrid"
)

// Config holds the application configuration.
type Config struct {
	BotToken     string
	CoinGeckoURL string
	FearGreedURL string
	RegistryPath string
	Timezone     string
	LogLevel     string
	PollInterval time.Duration
	CacheTTL     time.Duration
	RequestDelay time.Duration
	RateCooldown time.Duration
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	viper.AutomaticEnv()

	viper.SetDefault("COINGECKO_API_URL", DefaultCoinGeckoURL)
	viper.SetDefault("FEAR_GREED_API_URL", DefaultFearGreedURL)
	viper.SetDefault("REGISTRY_PATH", DefaultRegistryPath)
	viper.SetDefault("TIMEZONE", DefaultTimezone)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("POLL_INTERVAL", "30s")
	viper.SetDefault("CACHE_TTL", "5m")
	viper.SetDefault("REQUEST_DELAY", "5s")
	viper.SetDefault("RATE_COOLDOWN", "120s")

	token := viper.GetString("BOT_TOKEN")
	if token == "" {
		return nil, errors.New("BOT_TOKEN is not set")
	}

	config := &Config{
		BotToken:     token,
		CoinGeckoURL: viper.GetString("COINGECKO_API_URL"),
		FearGreedURL: viper.GetString("FEAR_GREED_API_URL"),
		RegistryPath: viper.GetString("REGISTRY_PATH"),
		Timezone:     viper.GetString("TIMEZONE"),
		LogLevel:     viper.GetString("LOG_LEVEL"),
	}

	for key, target := range map[string]*time.Duration{
		"POLL_INTERVAL": &config.PollInterval,
		"CACHE_TTL":     &config.CacheTTL,
		"REQUEST_DELAY": &config.RequestDelay,
		"RATE_COOLDOWN": &config.RateCooldown,
	} {
		duration, err := str2duration.ParseDuration(viper.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = duration
	}

	return config, nil
}
