package service

import (
	"context"
	"time"

	quoterepo "tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/internal/settlement/repository"
	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// recordSupplierExpenses writes a pending supplier-payment expense for every
// item with a known positive supplier cost. Only invoked on full payments.
//
// A single item's failure is logged and skipped; the loop never aborts because
// one supplier write failed. Returns how many expenses were written and how
// many items failed.
func (s *Service) recordSupplierExpenses(ctx context.Context, quote *quoterepo.Quote, items []quoterepo.Item, paymentID uuid.UUID) (recorded, failed int) {
	for _, item := range items {
		if item.SupplierCostCents == nil || *item.SupplierCostCents <= 0 {
			continue
		}

		supplierName := ""
		if item.SupplierName != nil {
			supplierName = *item.SupplierName
		}

		var supplierID *uuid.UUID
		if supplierName != "" {
			supplier, err := s.suppliers.FindOrCreate(ctx, quote.AgentID, supplierName)
			if err != nil {
				s.log.Warn("supplier resolution failed, skipping expense",
					"quote_id", quote.ID, "item_id", item.ID, "supplier", supplierName, "error", err)
				failed++
				continue
			}
			supplierID = &supplier.ID
		}

		itemID := item.ID
		expense := &repository.Expense{
			ID:          uuid.New(),
			QuoteID:     quote.ID,
			PaymentID:   paymentID,
			ItemID:      &itemID,
			SupplierID:  supplierID,
			Category:    repository.ExpenseCategorySupplierPayment,
			AmountCents: *item.SupplierCostCents,
			Status:      repository.ExpenseStatusPending,
			CreatedAt:   time.Now(),
		}

		if err := s.repo.CreateExpense(ctx, expense); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				// Already recorded by a previous run of this settlement.
				recorded++
				continue
			}
			s.log.Warn("supplier expense write failed, continuing",
				"quote_id", quote.ID, "item_id", item.ID, "error", err)
			failed++
			continue
		}
		recorded++
	}
	return recorded, failed
}

// recordProcessingFee books the processor's cut of this charge as a platform
// expense. Purely internal bookkeeping, never customer-facing.
func (s *Service) recordProcessingFee(ctx context.Context, quote *quoterepo.Quote, payment *repository.Payment) error {
	fee := processingFeeCents(payment.AmountCents)
	expense := &repository.Expense{
		ID:          uuid.New(),
		QuoteID:     quote.ID,
		PaymentID:   payment.ID,
		Category:    repository.ExpenseCategoryProcessingFee,
		AmountCents: fee,
		Status:      repository.ExpenseStatusPending,
		CreatedAt:   time.Now(),
	}
	err := s.repo.CreateExpense(ctx, expense)
	if apperr.Is(err, apperr.KindConflict) {
		return nil
	}
	return err
}

// processingFeeCents is the processor's fee schedule: 2.9% plus 30 cents.
func processingFeeCents(amountCents int64) int64 {
	return amountCents*290/10000 + 30
}
