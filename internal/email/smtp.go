package email

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection
// via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	for _, att := range attachments {
		msg.AttachReader(att.FileName, bytes.NewReader(att.Content))
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendTaskCreatedEmail(ctx context.Context, toEmail, taskTitle, priority, dueDate, taskURL string) error {
	content, err := renderEmailTemplate("task_created.html", taskCreatedEmailData{
		baseEmailData: baseEmailData{
			Title:    "New fulfillment task",
			Heading:  "New fulfillment task",
			CTALabel: "Open task",
			CTAURL:   taskURL,
		},
		TaskTitle: taskTitle,
		Priority:  priority,
		DueDate:   dueDate,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectTaskCreated, content)
}

func (s *SMTPSender) SendTaskOverdueEmail(ctx context.Context, toEmail, taskTitle, dueDate, taskURL string) error {
	content, err := renderEmailTemplate("task_overdue.html", taskOverdueEmailData{
		baseEmailData: baseEmailData{
			Title:    "Task overdue",
			Heading:  "Task overdue",
			CTALabel: "Open task",
			CTAURL:   taskURL,
		},
		TaskTitle: taskTitle,
		DueDate:   dueDate,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectTaskOverdueFmt, taskTitle), content)
}

func (s *SMTPSender) SendPaymentReceiptEmail(ctx context.Context, toEmail, quoteReference, receiptRef string, amountCents int64, currency string, attachments ...Attachment) error {
	content, err := renderEmailTemplate("payment_receipt.html", paymentReceiptEmailData{
		baseEmailData: baseEmailData{
			Title:   "Payment received",
			Heading: "Payment received",
		},
		QuoteReference:  quoteReference,
		ReceiptRef:      receiptRef,
		AmountFormatted: formatAmount(amountCents, currency),
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectPaymentReceiptFmt, quoteReference), content, attachments...)
}

func (s *SMTPSender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return s.send(ctx, toEmail, subject, htmlContent)
}

// Compile-time check.
var _ Sender = (*SMTPSender)(nil)
