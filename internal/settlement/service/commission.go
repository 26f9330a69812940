package service

import (
	"context"
	"time"

	quoterepo "tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/internal/settlement/repository"
	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// Platform default commission rate when the quote carries no override.
const defaultCommissionRateBps = 1000

// generateCommission computes and persists the agent commission for a settled
// payment, linked to the invoice when one was generated. Idempotent per
// payment id, same as the invoice generator.
func (s *Service) generateCommission(ctx context.Context, quote *quoterepo.Quote, paymentID uuid.UUID, invoiceID *uuid.UUID) (*repository.Commission, error) {
	if existing, err := s.repo.GetCommissionByPaymentID(ctx, paymentID); err == nil {
		return existing, nil
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	rateBps := defaultCommissionRateBps
	if quote.CommissionRateBps != nil {
		rateBps = *quote.CommissionRateBps
	}

	commission := &repository.Commission{
		ID:          uuid.New(),
		QuoteID:     quote.ID,
		PaymentID:   paymentID,
		InvoiceID:   invoiceID,
		AgentID:     quote.AgentID,
		RateBps:     rateBps,
		AmountCents: quote.TotalCents * int64(rateBps) / 10000,
		Status:      repository.CommissionStatusPending,
		EarnedAt:    time.Now(),
	}

	if err := s.repo.CreateCommission(ctx, commission); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return s.repo.GetCommissionByPaymentID(ctx, paymentID)
		}
		return nil, err
	}

	return commission, nil
}
