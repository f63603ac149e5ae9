// Package main is the entry point for the cryptodigest Telegram bot.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/deagle/cryptodigest/internal/config"
	"github.com/deagle/cryptodigest/pkg/digest"
	"github.com/deagle/cryptodigest/pkg/logger"
	zladapter "github.com/deagle/cryptodigest/pkg/logger/zerolog"
	"github.com/deagle/cryptodigest/pkg/market"
	"github.com/deagle/cryptodigest/pkg/notification"
	"github.com/deagle/cryptodigest/pkg/registry"
	"github.com/deagle/cryptodigest/pkg/scheduler"
)

const dateTimeLayout = "2006-01-02 15:04:05"

func main() {
	rootCmd := &cobra.Command{
		Use:     "cryptodigest",
		Short:   "Telegram bot for daily cryptocurrency market digests",
		Version: "1.0.0",
		RunE:    run,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	// A .env file is optional; deployments usually set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := logger.NewZerolog(cfg.LogLevel, dateTimeLayout, true, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := zladapter.NewAdapter(zl)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	store, err := registry.FromFile(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("failed to open registry store: %w", err)
	}
	defer store.Close()

	reg := registry.New(store, log)
	reg.Load()

	client := market.NewClient(cfg.CoinGeckoURL, cfg.FearGreedURL, log,
		market.WithDelays(cfg.RequestDelay, cfg.RateCooldown))
	cache := market.NewCache(client, log,
		market.WithTTL(cfg.CacheTTL))

	bot, err := notification.NewTelegram(cfg.BotToken, reg, cache, loc, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(reg, cache, bot, digest.Format, loc, log,
		scheduler.WithInterval(cfg.PollInterval))

	go sched.Run(cmd.Context())

	log.WithFields(map[string]any{
		"timezone": cfg.Timezone,
		"registry": cfg.RegistryPath,
	}).Info("cryptodigest initialized")

	bot.Start()
	return nil
}
