package email

import (
	"context"
	"errors"
	"testing"

	"tripdesk_backend/internal/events"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type recordingSender struct {
	NoopSender
	receipts []string
}

func (r *recordingSender) SendPaymentReceiptEmail(ctx context.Context, toEmail, quoteReference, receiptRef string, amountCents int64, currency string, attachments ...Attachment) error {
	r.receipts = append(r.receipts, toEmail+" "+quoteReference+" "+receiptRef)
	return nil
}

type fakeDirectory struct {
	email string
	err   error
}

func (f *fakeDirectory) GetAgentEmail(ctx context.Context, agentID uuid.UUID) (string, error) {
	return f.email, f.err
}

func settledEvent() events.PaymentSettled {
	return events.PaymentSettled{
		BaseEvent:      events.NewBaseEvent(),
		PaymentID:      uuid.New(),
		QuoteID:        uuid.New(),
		AgentID:        uuid.New(),
		QuoteReference: "TRP-2026-0042",
		PaymentStatus:  "paid_in_full",
		AmountCents:    100000,
		Currency:       "EUR",
		ReceiptRef:     "RCP-A1B2C3D4E5",
	}
}

func TestNotifier_SettledPaymentMailsReceiptToAgent(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, &fakeDirectory{email: "agent@example.com"}, "https://app.example.com", logger.New("development"))

	bus := events.NewInMemoryBus(logger.New("development"))
	n.Subscribe(bus)
	if err := bus.PublishSync(context.Background(), settledEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.receipts) != 1 {
		t.Fatalf("expected one receipt email, got %d", len(sender.receipts))
	}
	if got := sender.receipts[0]; got != "agent@example.com TRP-2026-0042 RCP-A1B2C3D4E5" {
		t.Fatalf("unexpected receipt %q", got)
	}
}

func TestNotifier_UnresolvableAgentSkipsReceipt(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, &fakeDirectory{err: errors.New("agent deactivated")}, "https://app.example.com", logger.New("development"))

	// Lookup failures are swallowed: a missing mailbox never bubbles an error
	// into event dispatch.
	if err := n.onPaymentSettled(context.Background(), settledEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.receipts) != 0 {
		t.Fatalf("expected no receipt, got %d", len(sender.receipts))
	}
}
