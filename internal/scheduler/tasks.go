// Package scheduler runs the background jobs: task due reminders, the
// overdue sweep, and settlement paperwork retries.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskDueReminder fires once per task at its due time.
const TaskDueReminder = "tasks.due.reminder"

// TaskOverdueSweep periodically re-checks for overdue tasks that slipped
// through individual reminders.
const TaskOverdueSweep = "tasks.overdue.sweep"

// TaskPaperworkRetry re-runs invoice and commission generation for a payment
// whose settlement run degraded.
const TaskPaperworkRetry = "settlement.paperwork.retry"

type DueReminderPayload struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

type PaperworkRetryPayload struct {
	PaymentID string `json:"paymentId"`
}

func NewDueReminderTask(payload DueReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDueReminder, data), nil
}

func ParseDueReminderPayload(task *asynq.Task) (DueReminderPayload, error) {
	var payload DueReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DueReminderPayload{}, err
	}
	return payload, nil
}

func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil)
}

func NewPaperworkRetryTask(payload PaperworkRetryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaperworkRetry, data), nil
}

func ParsePaperworkRetryPayload(task *asynq.Task) (PaperworkRetryPayload, error) {
	var payload PaperworkRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PaperworkRetryPayload{}, err
	}
	return payload, nil
}
