package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xstation/internal/api"
	"xstation/internal/config"
	"xstation/internal/database"
	"xstation/internal/domain"
	"xstation/internal/events"
	"xstation/internal/logging"
	"xstation/internal/metrics"
	"xstation/internal/notify"
	"xstation/internal/repository"
	"xstation/internal/service"
	"xstation/internal/timer"
	"xstation/internal/xstation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	var db *database.DB
	if cfg.Database.Path != "" {
		db, err = database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return err
		}
		defer db.Close()
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	persistence, err := initTimerPersistence(cfg, db, redisClient, clock, logger)
	if err != nil {
		return err
	}
	store := timer.NewStore(persistence, logging.Component(logger, "timer-store"))

	client := xstation.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout, logging.Component(logger, "xstation"))
	if redisClient != nil {
		client.UseRedisCache(redisClient, cfg.Backend.CacheTTL)
	}

	eventBus := events.NewEventBus()

	var journal domain.Journal
	var journalReader api.JournalReader
	if db != nil {
		journal = db
		journalReader = db
	}

	reconciler := timer.NewReconciler(client, store, eventBus, journal, clock, timer.Options{
		RefreshInterval: cfg.Reconciler.RefreshInterval,
		TickInterval:    cfg.Reconciler.TickInterval,
		GracePeriod:     cfg.Reconciler.GracePeriod,
		EndTimeout:      cfg.Reconciler.EndTimeout,
		Retry: timer.RetryPolicy{
			InitialDelay:  cfg.Reconciler.RetryDelay,
			MaxDelay:      cfg.Reconciler.RetryMaxDelay,
			BackoffFactor: 2,
		},
	}, logging.Component(logger, "reconciler"))

	frontDesk := service.NewFrontDeskService(client, store, reconciler, eventBus, clock, logging.Component(logger, "front-desk"))

	if err := startNotifier(ctx, cfg, eventBus, logger); err != nil {
		return err
	}

	if db != nil {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, clock, logging.Component(logger, "backup"))
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	if err := reconciler.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("start reconciler")
		return err
	}

	var httpServer *api.HTTPServer
	if cfg.API.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, api.Deps{
			Timers:    reconciler,
			FrontDesk: frontDesk,
			Journal:   journalReader,
			Catalog:   client,
			Clock:     clock,
		}, logging.Component(logger, "http"))
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
				stop()
			}
		}()
	}

	logger.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("timers_backend", cfg.Timers.Backend).
		Bool("api", cfg.API.Enabled).
		Msg("xstationd started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	reconciler.Stop()

	logger.Info().Msg("xstationd stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		// redis-бэкенд таймеров переживёт это через failover
		logger.Warn().Err(err).Msg("redis connection failed")
		if cfg.Timers.Backend != config.TimersBackendRedis {
			_ = redisClient.Close()
			return nil
		}
		return redisClient
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initTimerPersistence picks the fallback timer backend. Redis and SQLite are
// wrapped in failover over an in-memory copy.
func initTimerPersistence(
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	clock clockwork.Clock,
	logger *zerolog.Logger,
) (domain.TimerPersistence, error) {
	memory := repository.NewMemoryTimerPersistence()
	failoverLogger := logging.Component(logger, "timer-persistence")

	switch cfg.Timers.Backend {
	case config.TimersBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("timers backend redis: client is not configured")
		}
		primary := repository.NewRedisTimerPersistence(redisClient, cfg.Timers.StorageKey)
		return repository.NewFailoverTimerPersistence(primary, memory, clock, failoverLogger), nil
	case config.TimersBackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("timers backend sqlite: database is not configured")
		}
		return repository.NewFailoverTimerPersistence(db.ClientTimers(), memory, clock, failoverLogger), nil
	default:
		return memory, nil
	}
}

func startNotifier(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) error {
	if cfg.Telegram.BotToken == "" {
		logger.Info().Msg("telegram notifications disabled")
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("init telegram bot")
		return err
	}
	bot.Debug = cfg.Telegram.Debug
	logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(cfg.Telegram.ChatIDs)).Msg("telegram bot authorized")

	notifier := notify.NewTelegramNotifier(bot, cfg.Telegram.ChatIDs, logging.Component(logger, "telegram"))
	notifier.Subscribe(bus)
	go notifier.Run(ctx)
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
