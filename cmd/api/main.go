package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"flariki/internal/api"
	"flariki/internal/bot"
	"flariki/internal/config"
	"flariki/internal/database"
	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/google"
	"flariki/internal/jobs"
	"flariki/internal/logging"
	"flariki/internal/metrics"
	"flariki/internal/repository"
	"flariki/internal/service"
	"flariki/internal/storage"
	"flariki/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// telegramPerSecond держит рассылку под глобальным лимитом Bot API.
const telegramPerSecond = 25

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

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	rateLimits := initStateRepository(cfg, redisClient, logger)

	tg, err := bot.Connect(cfg.Telegram)
	if err != nil {
		return err
	}
	notifier := service.NewTelegramNotifier(service.NewTelegramService(tg))
	dispatcher := worker.NewDispatcher(notifier, cfg.Jobs.FanOutWorkers, telegramPerSecond, logger)

	var sync domain.SyncEnqueuer
	if sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, logger); sheetsWorker != nil {
		go sheetsWorker.Start(ctx)
		sync = sheetsWorker
	}

	blobs, err := storage.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.URLPrefix, logger)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Jobs.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Jobs.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}

	bus := events.NewEventBus()
	links := service.Links{FrontendURL: cfg.App.FrontendURL}
	issuer := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	audit := service.NewAuditor(db, logger)
	gates := service.NewGateService(db)
	ledger := service.NewLedgerService(db, db, dispatcher, audit, bus, logger)

	svc := api.Services{
		DB: db,
		Gate: service.NewAccessGate(
			service.NewTelegramResolver(db, cfg.Telegram.BotToken, cfg.Auth.InitDataMaxAge, logger),
			service.NewBearerResolver(db, issuer),
		),
		Gates:      gates,
		AdminAuth:  service.NewAdminAuthService(db, issuer, cfg.Auth.BootstrapPasswords, logger),
		Users:      service.NewUserService(db, dispatcher, audit, bus, links, logger),
		Tasks:      service.NewTaskService(db, db, gates, dispatcher, audit, bus, links, logger),
		Reports:    service.NewReportService(db, gates, dispatcher, sync, audit, bus, logger),
		Ledger:     ledger,
		Shop:       service.NewShopService(db, gates, dispatcher, sync, audit, bus, logger),
		Catalog:    service.NewCatalogService(db, audit),
		Broadcasts: service.NewBroadcastService(db, db, db, dispatcher, audit, bus, links, logger),
		Audit:      audit,
		Stats:      service.NewStatsService(db),
		Blobs:      blobs,
		RateLimits: rateLimits,
		Events:     bus,
	}
	server := api.NewServer(cfg, svc, logger)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(loc, logger)
		reminders := service.NewReminderService(db, db, db, dispatcher, links, loc, logger)
		backups := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logger)
		if err := jobs.Register(scheduler, cfg, reminders, ledger, backups, logger); err != nil {
			return fmt.Errorf("register jobs: %w", err)
		}
		scheduler.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("version", cfg.App.Version).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("jobs did not finish in time")
		}
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("notifications were not fully delivered")
	}

	logger.Info().Msg("API server stopped")
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
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initStateRepository: счетчики rate limit в Redis, при его отказе в памяти процесса.
func initStateRepository(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	ttl := time.Duration(cfg.Bot.StateTTL) * time.Second
	memory := repository.NewMemoryStateRepository(ttl)
	if client == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(repository.NewRedisStateRepository(client, ttl), memory, logger)
}

func initSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return worker.NewSheetsWorker(db, sheetsService, redisClient, logger)
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
