package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/CeoatNorthstar/qhub-auth/internal/api/http"
	"github.com/CeoatNorthstar/qhub-auth/internal/api/http/handlers"
	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/config"
	"github.com/CeoatNorthstar/qhub-auth/internal/events"
	"github.com/CeoatNorthstar/qhub-auth/internal/observability"
	"github.com/CeoatNorthstar/qhub-auth/internal/persistence"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository/memory"
	"github.com/CeoatNorthstar/qhub-auth/internal/service"
	"github.com/CeoatNorthstar/qhub-auth/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Auth.UsesDevSecret() {
		logger.Warn("using the built-in development JWT secret; set AUTH_JWT_SECRET in production")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		logger.Warn("no database configured; principals and sessions are kept in memory")
		store = memory.NewStore()
	}

	usage := newUsageRepository(cfg, pg, redis, logger)

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))
	if cfg.Events.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Queue, logger)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			defer publisher.Close() //nolint:errcheck
			events.SubscribeAll(dispatcher, publisher.Handle)
			logger.Info("publishing auth events", zap.String("queue", cfg.Events.Queue))
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, nil)
	credentials := service.NewCredentialStore(store, auth.NewHasher(cfg.Auth.BcryptCost), logger, nil)
	sessions := service.NewSessionRegistry(store, dispatcher, logger, nil)
	quota := service.NewQuotaEnforcer(usage, nil, dispatcher, logger, nil)
	authService := service.NewAuthService(service.AuthDependencies{
		Store:       store,
		Credentials: credentials,
		Sessions:    sessions,
		Tokens:      tokens,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	gate := auth.NewGate(tokens, sessions, credentials, logger)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:  handlers.NewAuthHandler(authService),
		Quota: handlers.NewQuotaHandler(quota, metrics),
		Gate:  gate,
	})

	sweeperDone := worker.StartSessionSweeper(ctx, worker.NewSessionSweeper(sessions, cfg.Worker.SessionSweepInterval, logger))

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-sweeperDone
}

func newUsageRepository(cfg *config.Config, pg *persistence.Postgres, redis *persistence.Redis, logger *zap.Logger) repository.UsageRepository {
	backend := cfg.QuotaBackend()
	logger.Info("quota backend selected", zap.String("backend", backend))

	switch backend {
	case "postgres":
		if !pg.Enabled() {
			logger.Fatal("quota backend postgres requires a database connection")
		}
		return repository.NewUsageRepository(pg.PoolHandle())
	case "redis":
		if !redis.Enabled() {
			logger.Fatal("quota backend redis requires REDIS_ADDR")
		}
		return repository.NewRedisUsageRepository(redis.Client, cfg.Quota.RedisPrefix)
	default:
		return memory.NewUsageRepository()
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
