package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"closing_backend/internal/adapters"
	"closing_backend/internal/email"
	"closing_backend/internal/events"
	apphttp "closing_backend/internal/http"
	"closing_backend/internal/http/router"
	"closing_backend/internal/leads"
	"closing_backend/internal/nurturing"
	"closing_backend/internal/nurturing/channel"
	"closing_backend/internal/nurturing/seed"
	"closing_backend/internal/scheduler"
	"closing_backend/platform/config"
	"closing_backend/platform/db"
	"closing_backend/platform/logger"
	"closing_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, cfg.MigrationsDir)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	// Delivery idempotency guard; redis is optional for the API binary.
	var guard *channel.IdempotencyGuard
	if cfg.RedisURL != "" {
		redisClient, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()
		guard = channel.NewIdempotencyGuard(redisClient)
	} else {
		log.Warn("REDIS_URL not configured; dispatch idempotency guard disabled")
	}

	channelAdapters := []channel.Adapter{channel.NewEmailAdapter(sender)}
	if smsAdapter := channel.NewSMSAdapter(cfg, log); smsAdapter != nil {
		channelAdapters = append(channelAdapters, smsAdapter)
	}
	registry := channel.NewRegistry(channelAdapters...)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(pool, eventBus, val, log)

	leadDirectory := adapters.NewLeadsDirectoryAdapter(leadsModule.Repository())
	nurturingModule := nurturing.NewModule(pool, leadDirectory, registry, guard, eventBus, cfg, val, log)
	nurturingModule.RegisterHandlers(eventBus)

	if cfg.RedisURL != "" {
		dispatchClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer func() { _ = dispatchClient.Close() }()
		nurturingModule.SetDispatchTrigger(dispatchClient)
	}

	if err := seed.LoadFile(ctx, nurturingModule.Repository(), cfg.SequenceSeedFile); err != nil {
		log.Error("failed to seed nurturing sequences", "error", err)
		panic("failed to seed nurturing sequences: " + err.Error())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			nurturingModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
