package email

import (
	"context"
	"fmt"
	"time"

	"tripdesk_backend/internal/events"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// AgentDirectory resolves an agent id to a deliverable email address.
type AgentDirectory interface {
	GetAgentEmail(ctx context.Context, agentID uuid.UUID) (string, error)
}

// Notifier turns domain events into emails. It subscribes to the event bus,
// so senders never block the publishing request.
type Notifier struct {
	sender     Sender
	agents     AgentDirectory
	appBaseURL string
	log        *logger.Logger
}

// NewNotifier creates the email notifier.
func NewNotifier(sender Sender, agents AgentDirectory, appBaseURL string, log *logger.Logger) *Notifier {
	return &Notifier{sender: sender, agents: agents, appBaseURL: appBaseURL, log: log}
}

// Subscribe registers the notifier on the event bus.
func (n *Notifier) Subscribe(bus events.Bus) {
	bus.Subscribe(events.TaskCreated{}.EventName(), events.HandlerFunc(n.onTaskCreated))
	bus.Subscribe(events.TaskOverdue{}.EventName(), events.HandlerFunc(n.onTaskOverdue))
	bus.Subscribe(events.PaymentSettled{}.EventName(), events.HandlerFunc(n.onPaymentSettled))
}

// onPaymentSettled mails the receipt to the quote's agent, who forwards it to
// the traveller through their own channel.
func (n *Notifier) onPaymentSettled(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PaymentSettled)
	if !ok {
		return nil
	}

	toEmail, err := n.agents.GetAgentEmail(ctx, e.AgentID)
	if err != nil {
		n.log.Warn("agent email lookup failed, skipping receipt",
			"agent_id", e.AgentID, "payment_id", e.PaymentID, "error", err)
		return nil
	}

	return n.sender.SendPaymentReceiptEmail(ctx, toEmail, e.QuoteReference, e.ReceiptRef, e.AmountCents, e.Currency)
}

func (n *Notifier) onTaskCreated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.TaskCreated)
	if !ok {
		return nil
	}

	toEmail, err := n.agents.GetAgentEmail(ctx, e.AgentID)
	if err != nil {
		n.log.Warn("agent email lookup failed, skipping notification",
			"agent_id", e.AgentID, "task_id", e.TaskID, "error", err)
		return nil
	}

	due := ""
	if e.DueAt != nil {
		due = e.DueAt.Format(time.RFC1123)
	}
	return n.sender.SendTaskCreatedEmail(ctx, toEmail, e.Title, e.Priority, due, n.taskURL(e.TaskID))
}

func (n *Notifier) onTaskOverdue(ctx context.Context, event events.Event) error {
	e, ok := event.(events.TaskOverdue)
	if !ok {
		return nil
	}

	toEmail, err := n.agents.GetAgentEmail(ctx, e.AgentID)
	if err != nil {
		n.log.Warn("agent email lookup failed, skipping reminder",
			"agent_id", e.AgentID, "task_id", e.TaskID, "error", err)
		return nil
	}

	return n.sender.SendTaskOverdueEmail(ctx, toEmail, e.Title, e.DueAt.Format(time.RFC1123), n.taskURL(e.TaskID))
}

func (n *Notifier) taskURL(taskID uuid.UUID) string {
	return fmt.Sprintf("%s/tasks/%s", n.appBaseURL, taskID)
}
