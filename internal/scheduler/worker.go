package scheduler

import (
	"context"
	"fmt"
	"time"

	"tripdesk_backend/internal/events"
	settlementtransport "tripdesk_backend/internal/settlement/transport"
	"tripdesk_backend/internal/tasks/repository"
	taskssvc "tripdesk_backend/internal/tasks/service"
	"tripdesk_backend/platform/config"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// The sweep caps how many overdue tasks one run handles and how many reminder
// publishes run at once.
const (
	sweepBatchSize   = 200
	sweepConcurrency = 5
)

// PaperworkRetrier re-runs invoice and commission generation for a payment.
type PaperworkRetrier interface {
	RetryPaperwork(ctx context.Context, paymentID uuid.UUID) (*settlementtransport.RetryPaperworkResponse, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	repo      *repository.Repository
	paperwork PaperworkRetrier
	bus       events.Bus
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, paperwork PaperworkRetrier, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		repo:      repository.New(pool),
		paperwork: paperwork,
		bus:       bus,
		log:       log,
	}

	mux.HandleFunc(TaskDueReminder, w.handleDueReminder)
	mux.HandleFunc(TaskOverdueSweep, w.handleOverdueSweep)
	mux.HandleFunc(TaskPaperworkRetry, w.handlePaperworkRetry)

	return w, nil
}

// handleDueReminder fires when a task's due time arrives. If it is still open
// the assigned agent gets an overdue notification.
func (w *Worker) handleDueReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDueReminderPayload(task)
	if err != nil {
		return err
	}

	taskID, err := uuid.Parse(payload.TaskID)
	if err != nil {
		return err
	}

	t, err := w.repo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	if t.Status == repository.StatusCompleted || t.Status == repository.StatusCancelled {
		return nil
	}
	if t.DueAt == nil || t.DueAt.After(time.Now()) {
		return nil
	}

	return w.publishOverdue(ctx, t)
}

// handleOverdueSweep catches tasks whose individual reminder was lost, for
// example tasks created before the scheduler was deployed. Notifications go
// out concurrently but bounded.
func (w *Worker) handleOverdueSweep(ctx context.Context, _ *asynq.Task) error {
	overdue, err := w.repo.ListOverdue(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		return err
	}
	if len(overdue) == 0 {
		return nil
	}

	// Notify in working order so the most urgent reminders land first.
	taskssvc.SortTasks(overdue)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i := range overdue {
		t := overdue[i]
		g.Go(func() error {
			return w.publishOverdue(gctx, &t)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("overdue sweep: %w", err)
	}

	w.log.Info("overdue sweep completed", "tasks", len(overdue))
	return nil
}

func (w *Worker) publishOverdue(ctx context.Context, t *repository.Task) error {
	if w.bus == nil || t.DueAt == nil {
		return nil
	}
	return w.bus.PublishSync(ctx, events.TaskOverdue{
		BaseEvent: events.NewBaseEvent(),
		TaskID:    t.ID,
		QuoteID:   t.QuoteID,
		AgentID:   t.AgentID,
		Title:     t.Title,
		DueAt:     *t.DueAt,
	})
}

// handlePaperworkRetry re-runs the idempotent paperwork generators for one
// payment. Asynq retries the job if generation keeps failing.
func (w *Worker) handlePaperworkRetry(ctx context.Context, task *asynq.Task) error {
	if w.paperwork == nil {
		return nil
	}

	payload, err := ParsePaperworkRetryPayload(task)
	if err != nil {
		return err
	}

	paymentID, err := uuid.Parse(payload.PaymentID)
	if err != nil {
		return err
	}

	result, err := w.paperwork.RetryPaperwork(ctx, paymentID)
	if err != nil {
		return err
	}

	for _, step := range result.Steps {
		if step.Degraded {
			return fmt.Errorf("paperwork step %s still degraded: %s", step.Step, step.Error)
		}
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
