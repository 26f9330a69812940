package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripdesk_backend/internal/adapters"
	"tripdesk_backend/internal/email"
	"tripdesk_backend/internal/events"
	"tripdesk_backend/internal/processor"
	"tripdesk_backend/internal/quotes"
	"tripdesk_backend/internal/scheduler"
	settlementrepo "tripdesk_backend/internal/settlement/repository"
	settlementsvc "tripdesk_backend/internal/settlement/service"
	"tripdesk_backend/internal/suppliers"
	"tripdesk_backend/platform/config"
	"tripdesk_backend/platform/db"
	"tripdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// How often the worker re-enqueues the overdue sweep. The job is unique per
// interval so overlapping enqueues collapse into one.
const overdueSweepInterval = time.Hour

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

	// Overdue notifications published by the worker turn into emails here.
	var sender email.Sender = email.NoopSender{}
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(
			cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
	}
	notifier := email.NewNotifier(sender, adapters.NewAgentDirectory(pool), cfg.GetAppBaseURL(), log)
	notifier.Subscribe(eventBus)

	// Worker-side settlement wiring so paperwork retries run without the API.
	// No dispatcher: retries never re-dispatch fulfillment.
	var proc processor.Port
	if cfg.IsProcessorEnabled() {
		proc = processor.NewClient(cfg)
	} else {
		proc = processor.NewStubClient()
	}
	quotesModule := quotes.NewModule(pool)
	supplierResolver := adapters.NewSettlementSupplierResolver(suppliers.New(pool))
	settlementService := settlementsvc.New(
		settlementrepo.New(pool), proc,
		quotesModule.Service(), quotesModule.Service(),
		supplierResolver, log)

	worker, err := scheduler.NewWorker(cfg, pool, settlementService, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	schedClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer schedClient.Close()
	go runOverdueSweepLoop(ctx, schedClient, log)

	worker.Run(ctx)
}

// runOverdueSweepLoop enqueues the periodic overdue sweep until shutdown.
// The first sweep runs immediately so a fresh deploy catches up right away.
func runOverdueSweepLoop(ctx context.Context, client *scheduler.Client, log *logger.Logger) {
	enqueue := func() {
		if err := client.EnqueueOverdueSweep(ctx, overdueSweepInterval); err != nil {
			log.Warn("failed to enqueue overdue sweep", "error", err)
		}
	}

	enqueue()
	ticker := time.NewTicker(overdueSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
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
