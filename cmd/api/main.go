package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripdesk_backend/internal/adapters"
	"tripdesk_backend/internal/adapters/storage"
	"tripdesk_backend/internal/email"
	"tripdesk_backend/internal/events"
	"tripdesk_backend/internal/fulfillment"
	apphttp "tripdesk_backend/internal/http"
	"tripdesk_backend/internal/http/router"
	"tripdesk_backend/internal/processor"
	"tripdesk_backend/internal/quotes"
	"tripdesk_backend/internal/scheduler"
	"tripdesk_backend/internal/settlement"
	"tripdesk_backend/internal/suppliers"
	"tripdesk_backend/internal/tasks"
	"tripdesk_backend/platform/config"
	"tripdesk_backend/platform/db"
	"tripdesk_backend/platform/logger"
	"tripdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
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

	// Storage service for booking confirmation uploads (MinIO)
	var storageSvc storage.StorageService
	if cfg.IsMinIOEnabled() {
		minioSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		bucket := cfg.GetMinioBucketBookingConfirmations()
		if err := withRetry(ctx, log, "ensure booking-confirmations bucket", 5, 2*time.Second, func() error {
			return minioSvc.EnsureBucketExists(ctx, bucket)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		storageSvc = minioSvc
		log.Info("storage service initialized", "bookingConfirmationsBucket", bucket)
	} else {
		log.Warn("MinIO not configured; evidence uploads disabled")
	}

	// Payment processor client, or the stub when no processor is configured
	// (local development settles against synthetic charges).
	var proc processor.Port
	if cfg.IsProcessorEnabled() {
		proc = processor.NewClient(cfg)
		log.Info("payment processor client initialized", "baseURL", cfg.GetProcessorBaseURL())
	} else {
		proc = processor.NewStubClient()
		log.Warn("PROCESSOR_BASE_URL not configured; using stub processor client")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	quotesModule := quotes.NewModule(pool)
	suppliersRepo := suppliers.New(pool)
	tasksModule := tasks.NewModule(pool, val, log)

	// Quotes service satisfies both read and status-write ports of settlement.
	supplierResolver := adapters.NewSettlementSupplierResolver(suppliersRepo)
	settlementModule := settlement.NewModule(
		pool, proc, quotesModule.Service(), quotesModule.Service(),
		supplierResolver, cfg, val, log)

	// Booking providers and the fulfillment dispatcher sit between settlement
	// and tasks: settlement triggers dispatch, dispatch creates tasks.
	registry := fulfillment.NewRegistry(cfg)
	taskCreator := adapters.NewFulfillmentTaskCreator(tasksModule.Service())
	dispatcher := fulfillment.NewDispatcher(registry, taskCreator, log)
	dispatcher.SetEventBus(eventBus)

	// Set dispatcher on settlement (breaks circular dependency)
	settlementModule.Service().SetDispatcher(adapters.NewSettlementDispatcher(dispatcher))
	settlementModule.Service().SetEventBus(eventBus)

	// Tasks execute API bookings through the same provider registry.
	tasksModule.Service().SetBookingExecutor(adapters.NewTaskBookingExecutor(registry))
	tasksModule.Service().SetEventBus(eventBus)
	if storageSvc != nil {
		evidenceStorage := adapters.NewTaskEvidenceStorage(storageSvc, cfg.GetMinioBucketBookingConfirmations())
		tasksModule.Service().SetEvidenceStorage(evidenceStorage)
	}

	// Email notifications subscribe to domain events (not HTTP-facing).
	var sender email.Sender = email.NoopSender{}
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(
			cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
		log.Info("smtp email sender initialized", "host", cfg.GetSMTPHost())
	} else {
		log.Warn("EMAIL_ENABLED is false; email notifications disabled")
	}
	notifier := email.NewNotifier(sender, adapters.NewAgentDirectory(pool), cfg.GetAppBaseURL(), log)
	notifier.Subscribe(eventBus)

	// Due reminders ride asynq; without Redis the API still runs, reminders
	// are simply never scheduled.
	if cfg.GetRedisURL() != "" {
		schedClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer schedClient.Close()
		scheduler.RegisterSubscribers(eventBus, schedClient, log)
		log.Info("task reminder scheduling enabled")
	} else {
		log.Warn("REDIS_URL not configured; task due reminders disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			quotesModule,
			settlementModule,
			tasksModule,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
