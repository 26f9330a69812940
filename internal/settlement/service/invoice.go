package service

import (
	"context"
	"fmt"
	"time"

	quoterepo "tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/internal/settlement/repository"
	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// Fixed deposit fraction of the quote total, in basis points.
const depositFractionBps = 3000

// generateInvoice maintains the quote's single invoice. The first payment
// creates it; every later payment applies its captured amount to the existing
// document, so a deposit followed by the balance ends as one fully paid
// invoice, never two.
//
// Re-runs are idempotent: a payment that was already applied carries the
// invoice id and simply gets the current document back.
func (s *Service) generateInvoice(ctx context.Context, quote *quoterepo.Quote, payment *repository.Payment) (*repository.Invoice, error) {
	if payment.InvoiceID != nil {
		return s.repo.GetInvoiceByID(ctx, *payment.InvoiceID)
	}

	existing, err := s.repo.GetInvoiceByQuoteID(ctx, quote.ID)
	if err == nil {
		return s.applyPaymentToInvoice(ctx, existing, payment)
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	paid := quote.TotalCents
	if payment.Type == repository.PaymentTypeDeposit {
		paid = quote.TotalCents * depositFractionBps / 10000
	}
	remaining := quote.TotalCents - paid

	status := repository.InvoiceStatusSent
	if remaining == 0 {
		status = repository.InvoiceStatusPaid
	}

	number, err := s.repo.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("invoice number: %w", err)
	}

	now := time.Now()
	invoice := &repository.Invoice{
		ID:             uuid.New(),
		QuoteID:        quote.ID,
		PaymentID:      payment.ID,
		Number:         number,
		SubtotalCents:  quote.TotalCents,
		TaxCents:       0,
		TotalCents:     quote.TotalCents,
		PaidCents:      paid,
		RemainingCents: remaining,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.CreateInvoice(ctx, invoice); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Lost the one-invoice-per-quote race with a concurrent payment;
			// apply this payment to the winner's invoice instead.
			winner, getErr := s.repo.GetInvoiceByQuoteID(ctx, quote.ID)
			if getErr != nil {
				return nil, getErr
			}
			return s.applyPaymentToInvoice(ctx, winner, payment)
		}
		return nil, err
	}

	if err := s.repo.AttachInvoice(ctx, payment.ID, invoice.ID); err != nil {
		return nil, err
	}

	return invoice, nil
}

// applyPaymentToInvoice records an additional captured amount on the quote's
// existing invoice. Paid never exceeds the invoice total; an overshooting
// capture settles the document and the surplus stays visible on the payment.
func (s *Service) applyPaymentToInvoice(ctx context.Context, inv *repository.Invoice, payment *repository.Payment) (*repository.Invoice, error) {
	paid := inv.PaidCents + payment.AmountCents
	if paid > inv.TotalCents {
		paid = inv.TotalCents
	}
	remaining := inv.TotalCents - paid

	status := repository.InvoiceStatusPartial
	if remaining == 0 {
		status = repository.InvoiceStatusPaid
	}

	if err := s.repo.UpdateInvoicePayment(ctx, inv.ID, paid, remaining, status); err != nil {
		return nil, err
	}
	if err := s.repo.AttachInvoice(ctx, payment.ID, inv.ID); err != nil {
		return nil, err
	}

	inv.PaidCents = paid
	inv.RemainingCents = remaining
	inv.Status = status
	return inv, nil
}
