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
	leadsrepo "closing_backend/internal/leads/repository"
	"closing_backend/internal/nurturing/channel"
	nurturingrepo "closing_backend/internal/nurturing/repository"
	nurturingservice "closing_backend/internal/nurturing/service"
	"closing_backend/internal/scheduler"
	"closing_backend/platform/config"
	"closing_backend/platform/db"
	"closing_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()
	guard := channel.NewIdempotencyGuard(redisClient)

	channelAdapters := []channel.Adapter{channel.NewEmailAdapter(sender)}
	if smsAdapter := channel.NewSMSAdapter(cfg, log); smsAdapter != nil {
		channelAdapters = append(channelAdapters, smsAdapter)
	}
	registry := channel.NewRegistry(channelAdapters...)

	// Worker-side nurturing wiring (no HTTP handlers required).
	leadDirectory := adapters.NewLeadsDirectoryAdapter(leadsrepo.New(pool))
	nurturingSvc := nurturingservice.NewService(nurturingrepo.New(pool), leadDirectory, registry, guard, eventBus, cfg, log)

	dispatcher, err := scheduler.NewProcessDueDispatcher(cfg, log)
	if err != nil {
		log.Error("failed to initialize process-due dispatcher", "error", err)
		panic("failed to initialize process-due dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()

	worker, err := scheduler.NewWorker(cfg, nurturingSvc, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		dispatcher.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		worker.Run(groupCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
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
