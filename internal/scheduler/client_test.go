package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	redisURL string
}

func (c testSchedulerConfig) GetRedisURL() string      { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string { return "default" }
func (c testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func newTestClient(t *testing.T) (*Client, *asynq.Inspector) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := testSchedulerConfig{redisURL: "redis://" + mr.Addr()}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })

	return client, inspector
}

func TestScheduleDueReminder(t *testing.T) {
	client, inspector := newTestClient(t)

	payload := DueReminderPayload{
		TaskID:  "0e9f4f35-8e8a-4a22-a6de-5b9a3b1e0f10",
		AgentID: "b2f9c7f0-2f65-4f0d-9f5e-3e1a2cc00c11",
	}
	runAt := time.Now().Add(24 * time.Hour)

	if err := client.ScheduleDueReminder(context.Background(), payload, runAt); err != nil {
		t.Fatalf("ScheduleDueReminder: %v", err)
	}

	scheduled, err := inspector.ListScheduledTasks("default")
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(scheduled) != 1 {
		t.Fatalf("scheduled tasks = %d, want 1", len(scheduled))
	}
	if scheduled[0].Type != TaskDueReminder {
		t.Errorf("task type = %q, want %q", scheduled[0].Type, TaskDueReminder)
	}

	parsed, err := ParseDueReminderPayload(asynq.NewTask(scheduled[0].Type, scheduled[0].Payload))
	if err != nil {
		t.Fatalf("ParseDueReminderPayload: %v", err)
	}
	if parsed != payload {
		t.Errorf("payload = %+v, want %+v", parsed, payload)
	}
}

func TestEnqueueOverdueSweepIsUnique(t *testing.T) {
	client, inspector := newTestClient(t)

	if err := client.EnqueueOverdueSweep(context.Background(), time.Hour); err != nil {
		t.Fatalf("first EnqueueOverdueSweep: %v", err)
	}

	err := client.EnqueueOverdueSweep(context.Background(), time.Hour)
	if !errors.Is(err, asynq.ErrDuplicateTask) {
		t.Fatalf("second EnqueueOverdueSweep error = %v, want ErrDuplicateTask", err)
	}

	pending, err := inspector.ListPendingTasks("default")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(pending))
	}
	if pending[0].Type != TaskOverdueSweep {
		t.Errorf("task type = %q, want %q", pending[0].Type, TaskOverdueSweep)
	}
}

func TestEnqueuePaperworkRetry(t *testing.T) {
	client, inspector := newTestClient(t)

	payload := PaperworkRetryPayload{PaymentID: "7f4e8c40-11ab-4a5c-9f0a-6a2b3c4d5e6f"}
	if err := client.EnqueuePaperworkRetry(context.Background(), payload); err != nil {
		t.Fatalf("EnqueuePaperworkRetry: %v", err)
	}

	pending, err := inspector.ListPendingTasks("default")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(pending))
	}

	parsed, err := ParsePaperworkRetryPayload(asynq.NewTask(pending[0].Type, pending[0].Payload))
	if err != nil {
		t.Fatalf("ParsePaperworkRetryPayload: %v", err)
	}
	if parsed != payload {
		t.Errorf("payload = %+v, want %+v", parsed, payload)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var client *Client

	if err := client.ScheduleDueReminder(context.Background(), DueReminderPayload{}, time.Now()); err != nil {
		t.Errorf("ScheduleDueReminder on nil client: %v", err)
	}
	if err := client.EnqueueOverdueSweep(context.Background(), time.Hour); err != nil {
		t.Errorf("EnqueueOverdueSweep on nil client: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client: %v", err)
	}
}
