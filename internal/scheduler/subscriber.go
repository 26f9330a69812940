package scheduler

import (
	"context"

	"tripdesk_backend/internal/events"
	"tripdesk_backend/platform/logger"
)

// RegisterSubscribers wires the scheduler client onto the event bus: every
// task created with a due time gets a reminder scheduled at that time, and a
// settlement run that degraded gets its paperwork regenerated in the
// background.
func RegisterSubscribers(bus events.Bus, client *Client, log *logger.Logger) {
	bus.Subscribe(events.TaskCreated{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.TaskCreated)
		if !ok || e.DueAt == nil {
			return nil
		}

		err := client.ScheduleDueReminder(ctx, DueReminderPayload{
			TaskID:  e.TaskID.String(),
			AgentID: e.AgentID.String(),
		}, *e.DueAt)
		if err != nil {
			log.Warn("failed to schedule due reminder", "task_id", e.TaskID, "error", err)
		}
		return nil
	}))

	bus.Subscribe(events.SettlementDegraded{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.SettlementDegraded)
		if !ok {
			return nil
		}

		err := client.EnqueuePaperworkRetry(ctx, PaperworkRetryPayload{
			PaymentID: e.PaymentID.String(),
		})
		if err != nil {
			log.Warn("failed to enqueue paperwork retry",
				"payment_id", e.PaymentID, "steps", e.Steps, "error", err)
		}
		return nil
	}))
}
