// Package main is the entry point for the LevelUp XP engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"levelup-engine/internal/cache"
	"levelup-engine/internal/config"
	"levelup-engine/internal/handler"
	"levelup-engine/internal/metrics"
	"levelup-engine/internal/notify"
	"levelup-engine/internal/pkg/db"
	"levelup-engine/internal/pkg/lock"
	"levelup-engine/internal/platform"
	"levelup-engine/internal/repository"
	"levelup-engine/internal/reward"
	"levelup-engine/internal/server"
	"levelup-engine/internal/service"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(&cfg.App)
	log.Info().Str("env", cfg.App.Env).Msg("Configuration loaded successfully")

	loc, err := cfg.App.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid time zone")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	leaderboardCache, closeCache := newCache(ctx, &cfg.Redis)
	defer closeCache()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if err := dbPool.RegisterMetrics(reg); err != nil {
		log.Fatal().Err(err).Msg("Failed to register database metrics")
	}

	// Repositories
	memberRepo := repository.NewMemberRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	badgeRepo := repository.NewBadgeRepository(dbPool.Pool)
	ruleRepo := repository.NewRuleRepository(dbPool.Pool)
	rewardRepo := repository.NewRewardRepository(dbPool.Pool)
	leaderboardRepo := repository.NewLeaderboardRepository(dbPool.Pool)

	// Notifications
	var announcer service.Announcer
	var dispatcher *notify.Dispatcher
	if cfg.Notifications.Enabled {
		dispatcher = notify.NewDispatcher(newNotifier(cfg), cfg.Notifications.Timeout, m, log.Logger)
		announcer = dispatcher
	}

	memberLock := lock.NewKeyLock()

	// Services
	badgeService := service.NewBadgeService(memberRepo, badgeRepo, ledgerRepo, m, loc, log.Logger)
	leaderboardService := service.NewLeaderboardService(memberRepo, leaderboardRepo, leaderboardCache, m, service.LeaderboardOptions{
		CacheTTL:     cfg.Leaderboard.CacheTTL,
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		MaxLimit:     cfg.Leaderboard.MaxLimit,
	}, log.Logger)
	xpService := service.NewXPService(memberRepo, ledgerRepo, badgeService, leaderboardService, announcer, m, service.XPOptions{
		MaxPerGrant:       cfg.XP.MaxPerGrant,
		SideEffectTimeout: cfg.XP.SideEffectTimeout,
		BaseURL:           cfg.Notifications.BaseURL,
	}, log.Logger)
	eventService := service.NewEventService(memberRepo, ruleRepo, ledgerRepo, xpService, newProfileResolver(&cfg.Platform), memberLock, m, service.EventOptions{
		Actions:     cfg.Events.ActionMap(),
		LockTimeout: cfg.Events.LockTimeout,
		Location:    loc,
	}, log.Logger)
	rewardRegistry := reward.NewDefaultRegistry(log.Logger)
	rewardService := service.NewRewardService(memberRepo, badgeRepo, rewardRepo, rewardRegistry, memberLock,
		announcer, cfg.Notifications.BaseURL, cfg.Events.LockTimeout, log.Logger)
	queryService := service.NewQueryService(memberRepo, ledgerRepo, badgeRepo)

	log.Info().
		Strs("reward_types", rewardRegistry.Types()).
		Int("actions", len(cfg.Events.Actions)).
		Msg("Services initialized")

	srv := server.New(&cfg.Server, &server.Handlers{
		Webhook: handler.NewWebhookHandler(eventService, cfg.Server.WebhookSecret, cfg.Server.WebhookTimeout, log.Logger),
		XP:      handler.NewXPHandler(xpService, queryService),
		Members: handler.NewMemberHandler(queryService, leaderboardService, badgeService, eventService),
		Rewards: handler.NewRewardHandler(rewardService),
		Health:  handler.NewHealthHandler(dbPool, 2*time.Second),
	}, reg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Pending notifications dropped")
		}
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogging(cfg *config.AppConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// newCache returns the Redis cache, or an in-process cache when Redis is disabled.
func newCache(ctx context.Context, cfg *config.RedisConfig) (cache.Cache, func()) {
	if cfg.Disabled {
		log.Warn().Msg("Redis disabled, using in-process leaderboard cache")
		return cache.NewMemoryCache(), func() {}
	}
	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	return cache.NewRedisCache(client), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Telegram.Token == "" {
		log.Info().Msg("No Telegram token, notifications go to the log")
		return notify.NewLogNotifier(log.Logger.With().Str("component", "notifier").Logger())
	}
	n, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Notifications.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram notifier")
	}
	return n
}

// newProfileResolver returns nil when no platform API key is configured, so
// new members take their name from the event payload.
func newProfileResolver(cfg *config.PlatformConfig) service.ProfileResolver {
	client, err := platform.NewClient(cfg)
	if err != nil {
		log.Info().Err(err).Msg("Profile lookup disabled")
		return nil
	}
	return client
}
