// Package email sends transactional notifications to agents: new fulfillment
// work, overdue reminders, and payment receipts.
package email

import "context"

// Attachment represents a file attachment for an email.
type Attachment struct {
	Content  []byte
	FileName string
	MIMEType string
}

// Sender delivers the application's transactional emails.
type Sender interface {
	SendTaskCreatedEmail(ctx context.Context, toEmail, taskTitle, priority, dueDate, taskURL string) error
	SendTaskOverdueEmail(ctx context.Context, toEmail, taskTitle, dueDate, taskURL string) error
	SendPaymentReceiptEmail(ctx context.Context, toEmail, quoteReference, receiptRef string, amountCents int64, currency string, attachments ...Attachment) error
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

// NoopSender is used when email delivery is not configured. Every send
// succeeds silently.
type NoopSender struct{}

func (NoopSender) SendTaskCreatedEmail(ctx context.Context, toEmail, taskTitle, priority, dueDate, taskURL string) error {
	return nil
}

func (NoopSender) SendTaskOverdueEmail(ctx context.Context, toEmail, taskTitle, dueDate, taskURL string) error {
	return nil
}

func (NoopSender) SendPaymentReceiptEmail(ctx context.Context, toEmail, quoteReference, receiptRef string, amountCents int64, currency string, attachments ...Attachment) error {
	return nil
}

func (NoopSender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return nil
}

// Compile-time check.
var _ Sender = NoopSender{}
