package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habitquest/platform/internal/app"
	"github.com/habitquest/platform/internal/auth"
	"github.com/habitquest/platform/internal/catalog"
	"github.com/habitquest/platform/internal/guard"
	"github.com/habitquest/platform/internal/infra"
	"github.com/habitquest/platform/internal/progression"
	"github.com/habitquest/platform/internal/projection"
	"github.com/habitquest/platform/internal/repository"
	"github.com/habitquest/platform/internal/service"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	cat, err := catalog.New(catalog.DefaultDefinition())
	if err != nil {
		return fmt.Errorf("rule catalog: %w", err)
	}
	health := make(map[string]infra.Pinger)

	// Redis (optional): projection cache and cross-instance notifications
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		health["redis"] = infra.RedisPinger{Client: redisClient}
		logger.Info("connected to redis")
	}

	var projections projection.VersionedStore = projection.NewInMemoryStore()
	var relay infra.NotificationRelay
	if redisClient != nil {
		projections = projection.NewRedisStore(redisClient, "habitquest")
		relay = infra.NewRedisRelay(redisClient, cfg.NotificationsChannel, logger)
	}

	// Progress store
	var store progression.Store
	switch cfg.StoreBackend {
	case infra.StoreBackendPostgres:
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		health["postgres"] = pool
		logger.Info("connected to postgres")

		store = service.NewPgProgressStore(pool, repository.NewPgProgressRepository(), repository.NewOutboxRepository())
	case infra.StoreBackendMemory:
		logger.Warn("progress is kept in a key-value store without an outbox", "redis", redisClient != nil)
		store = progression.NewKVStore(projections, logger)
	}

	// Notifications
	hub := infra.NewNotificationHub(relay, logger)
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error("notification relay stopped", "error", err)
		}
	}()

	// Engines
	registry := progression.NewRegistry(cat, store, progression.Options{
		Location: loc,
		Notifier: hub,
		Logger:   logger,
	})

	if cfg.EngineIdleTTL > 0 {
		go evictEngines(ctx, registry, cfg.EngineIdleTTL, logger)
	}

	// Guards
	limiter := guard.NewRateLimiter(cfg.EventRateLimit, cfg.EventRateWindow)
	dedupe := guard.NewIdempotencyGuard(cfg.IdempotencyTTL)
	go sweepGuards(ctx, limiter, dedupe, logger)

	progressSvc := service.NewProgressService(registry, service.ProgressServiceConfig{
		Projections:   projections,
		Limiter:       limiter,
		Dedupe:        dedupe,
		ProjectionTTL: cfg.ProjectionTTL,
		Logger:        logger,
	})

	// Inbound perfect-months feed from the habit tracker
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaInboundTopic, cfg.KafkaConsumerGroup, cfg.KafkaEnabled, logger)
	defer consumer.Close()
	if consumer.Enabled() {
		pm := service.NewPerfectMonthsConsumer(consumer, progressSvc, logger)
		go func() {
			if err := pm.Run(ctx); err != nil {
				logger.Error("perfect months consumer stopped", "error", err)
			}
		}()
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTServiceExpiry)

	// Router
	r := app.NewRouter(app.RouterDeps{
		Progress:    progressSvc,
		Hub:         hub,
		JWTMgr:      jwtMgr,
		Logger:      logger,
		Health:      health,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	// Start server. WriteTimeout stays zero so notification streams are not cut.
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr, "store", cfg.StoreBackend, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := registry.Close(shutdownCtx); err != nil {
		logger.Error("flush progress on shutdown", "error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// sweepGuards drops expired rate-limit windows and idempotency keys.
func sweepGuards(ctx context.Context, limiter *guard.RateLimiter, dedupe *guard.IdempotencyGuard, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			windows := limiter.Sweep()
			keys := dedupe.Sweep()
			if windows+keys > 0 {
				logger.Debug("guards swept", "rate_windows", windows, "idempotency_keys", keys)
			}
		}
	}
}

// evictEngines drops engines that have been idle for longer than idle.
func evictEngines(ctx context.Context, registry *progression.Registry, idle time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.EvictIdle(ctx, idle); n > 0 {
				logger.Debug("idle engines evicted", "count", n, "loaded", registry.Len())
			}
		}
	}
}
