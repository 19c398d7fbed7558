package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/citrusbot/citrus/internal/cache"
	"github.com/citrusbot/citrus/internal/config"
	"github.com/citrusbot/citrus/internal/logging"
	"github.com/citrusbot/citrus/internal/notify"
	"github.com/citrusbot/citrus/internal/provider"
	"github.com/citrusbot/citrus/internal/service"
	"github.com/citrusbot/citrus/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "citrus",
	Short: "Stream live notifications for Twitch and YouTube channels",
	Long: `citrus watches tracked Twitch and YouTube channels and posts a Discord
notification when a channel goes live. Run "citrus check" from cron for the
polling cycle and "citrus serve" for the registry API.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"optional config file path (YAML); else environment variables are used")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds configuration from the --config file or the environment
// and initialises logging from it.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "citrus"})
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// migrationsPath locates the migrations directory in the working directory,
// falling back to the executable's directory for containerised deploys.
func migrationsPath() string {
	abs, err := filepath.Abs("migrations")
	if err != nil {
		abs = "migrations"
	}
	if _, err := os.Stat(abs); err != nil {
		if exe, e := os.Executable(); e == nil {
			abs = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	return "file://" + abs
}

// openStore waits for the database, runs migrations, and opens the pgx
// store, optionally wrapped with the Redis cache layer.
// Caller must invoke the returned cleanup function.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *cache.Redis, func(), error) {
	if err := store.WaitForDatabase(cfg.DatabaseURL, 10, time.Second); err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := store.RunMigrations(cfg.DatabaseURL, migrationsPath()); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db: %w", err)
	}

	var (
		rds      *cache.Redis
		appStore store.Store = pg
	)
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			pg.Close()
			return nil, nil, nil, fmt.Errorf("redis: %w", err)
		}
		if err := rds.Ping(ctx); err != nil {
			pg.Close()
			rds.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		appStore = store.NewCachedStore(pg, rds)
		l := logging.L()
		l.Info().Msg("redis connected (caching and cycle lock enabled)")
	} else {
		l := logging.L()
		l.Info().Msg("redis disabled (REDIS_URL not set)")
	}

	cleanup := func() {
		if rds != nil {
			rds.Close()
		}
		pg.Close()
	}
	return appStore, rds, cleanup, nil
}

// buildProviders constructs one client per platform from the configured
// credentials.
func buildProviders(cfg *config.Config) []provider.Provider {
	l := logging.L()
	if cfg.Twitch.ClientID == "" || cfg.Twitch.ClientSecret == "" {
		l.Warn().Msg("twitch credentials not set, twitch queries will fail")
	}
	if cfg.YouTubeAPIKey == "" {
		l.Warn().Msg("YOUTUBE_API_KEY not set, youtube queries will fail")
	}
	return []provider.Provider{
		provider.NewTwitch(cfg.Twitch, cfg.HTTPTimeout),
		provider.NewYouTube(cfg.YouTubeAPIKey, cfg.HTTPTimeout),
	}
}

// buildChecker wires the polling cycle from configuration.
func buildChecker(cfg *config.Config, s store.Store) *service.Checker {
	sender := notify.NewSender(cfg.HTTPTimeout, cfg.UserAgent)
	return service.NewChecker(s, buildProviders(cfg), sender, cfg.CheckDelay, logging.L())
}
