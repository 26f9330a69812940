// Package service implements the booking settlement pipeline: the sequence of
// operations triggered when a customer payment is confirmed.
//
// The contract is asymmetric by design: payment verification and persistence
// are fatal on failure, everything after is best-effort. Once the customer's
// money is recorded, paperwork gaps are recoverable operationally, never by
// rollback.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tripdesk_backend/internal/events"
	"tripdesk_backend/internal/processor"
	quoterepo "tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/internal/settlement/repository"
	"tripdesk_backend/internal/settlement/transport"
	"tripdesk_backend/platform/apperr"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Step names used in settlement reports.
const (
	StepRecordPayment    = "record_payment"
	StepProcessingFee    = "processing_fee"
	StepInvoice          = "invoice"
	StepCommission       = "commission"
	StepFundAllocation   = "fund_allocation"
	StepSupplierExpenses = "supplier_expenses"
	StepPaymentStatus    = "payment_status"
	StepDispatch         = "fulfillment_dispatch"
)

// Store is the persistence settlement depends on. The pgx-backed repository
// satisfies it in production; tests swap in an in-memory fake so partial
// failure combinations can be asserted without a database.
type Store interface {
	CreatePayment(ctx context.Context, p *repository.Payment) error
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*repository.Payment, error)
	AttachInvoice(ctx context.Context, paymentID, invoiceID uuid.UUID) error
	SumPaidByQuote(ctx context.Context, quoteID uuid.UUID) (int64, error)

	NextInvoiceNumber(ctx context.Context) (string, error)
	CreateInvoice(ctx context.Context, inv *repository.Invoice) error
	GetInvoiceByID(ctx context.Context, id uuid.UUID) (*repository.Invoice, error)
	GetInvoiceByQuoteID(ctx context.Context, quoteID uuid.UUID) (*repository.Invoice, error)
	UpdateInvoicePayment(ctx context.Context, id uuid.UUID, paidCents, remainingCents int64, status string) error

	CreateCommission(ctx context.Context, c *repository.Commission) error
	GetCommissionByPaymentID(ctx context.Context, paymentID uuid.UUID) (*repository.Commission, error)

	CreateExpense(ctx context.Context, e *repository.Expense) error

	CreateAllocations(ctx context.Context, allocations []repository.FundAllocation) error
	ListAllocationsByPayment(ctx context.Context, paymentID uuid.UUID) ([]repository.FundAllocation, error)
	ReleaseAllocation(ctx context.Context, id uuid.UUID) error
}

// QuoteReader loads the quote snapshot settlement operates on.
type QuoteReader interface {
	GetWithItems(ctx context.Context, id uuid.UUID) (*quoterepo.Quote, []quoterepo.Item, error)
}

// QuoteStatusWriter is the narrow write access settlement has to quotes.
type QuoteStatusWriter interface {
	SetPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus string) error
	MarkFulfillmentDispatched(ctx context.Context, id uuid.UUID) error
}

// SupplierResolver finds or creates a supplier contact by name.
type SupplierResolver interface {
	FindOrCreate(ctx context.Context, agentID uuid.UUID, name string) (*SupplierRef, error)
}

// SupplierRef is the resolved supplier identity settlement needs.
type SupplierRef struct {
	ID   uuid.UUID
	Name string
}

// DispatchSummary reports what the fulfillment dispatcher did.
type DispatchSummary struct {
	APISuccess  int
	APIFailed   int
	ManualTasks int
}

// FulfillmentDispatcher partitions a fully-paid quote's items into automated
// and manual fulfillment work.
type FulfillmentDispatcher interface {
	Dispatch(ctx context.Context, quote *quoterepo.Quote, items []quoterepo.Item, paymentID uuid.UUID) (DispatchSummary, error)
}

// Service is the settlement orchestrator.
type Service struct {
	repo       Store
	proc       processor.Port
	quotes     QuoteReader
	quoteState QuoteStatusWriter
	suppliers  SupplierResolver
	dispatcher FulfillmentDispatcher
	bus        events.Bus
	log        *logger.Logger
}

// New creates the settlement orchestrator with its collaborators injected.
// Nothing here reaches into ambient singletons.
func New(repo Store, proc processor.Port, quotes QuoteReader, quoteState QuoteStatusWriter, suppliers SupplierResolver, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		proc:       proc,
		quotes:     quotes,
		quoteState: quoteState,
		suppliers:  suppliers,
		log:        log,
	}
}

// SetDispatcher injects the fulfillment dispatcher (set after construction to
// break the settlement → fulfillment → tasks wiring cycle).
func (s *Service) SetDispatcher(d FulfillmentDispatcher) {
	s.dispatcher = d
}

// SetEventBus injects the domain event bus.
func (s *Service) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// ProcessPaymentConfirmation runs the settlement saga for one confirmed charge.
//
// Verification failure and payment persistence failure are fatal and surfaced
// to the caller. Every later step is independently caught and reported as a
// degraded step outcome; the response always reflects the true state of the
// money even when paperwork generation partially failed.
func (s *Service) ProcessPaymentConfirmation(ctx context.Context, req transport.ConfirmPaymentRequest) (*transport.SettlementResult, error) {
	// 1. Verify with the processor that the charge truly succeeded.
	charge, err := s.proc.RetrieveCharge(ctx, req.TransactionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "payment verification failed", err)
	}
	if charge.Status != processor.ChargeStatusSucceeded {
		return nil, apperr.BadRequest(fmt.Sprintf("charge is %s, not settleable", charge.Status))
	}

	amount := req.AmountCents
	currency := req.Currency
	if charge.AmountCents > 0 {
		// The processor's captured amount is authoritative over the webhook body.
		amount = charge.AmountCents
		currency = charge.Currency
	}

	quote, items, err := s.quotes.GetWithItems(ctx, req.QuoteID)
	if err != nil {
		return nil, err
	}

	// 2. Record the payment. This is the one required write; everything after
	// is best-effort.
	payment := &repository.Payment{
		ID:             uuid.New(),
		QuoteID:        quote.ID,
		AmountCents:    amount,
		Currency:       strings.ToUpper(currency),
		Type:           req.PaymentType,
		ProcessorTxnID: req.TransactionID,
		CreatedAt:      time.Now(),
	}
	payment.ReceiptRef = receiptRef(payment.ID)

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	s.log.SettlementStep(StepRecordPayment, payment.ID.String(), nil)

	result := &transport.SettlementResult{
		PaymentID:  payment.ID,
		ReceiptRef: payment.ReceiptRef,
	}

	// 3. Processing fee bookkeeping.
	feeErr := s.recordProcessingFee(ctx, quote, payment)
	result.Steps = append(result.Steps, s.stepOutcome(StepProcessingFee, payment.ID, feeErr, ""))

	// 4. Invoice, then commission, in that order: commission linkage carries
	// the invoice id.
	invoice, invErr := s.generateInvoice(ctx, quote, payment)
	var invoiceID *uuid.UUID
	if invErr == nil {
		invoiceID = &invoice.ID
		result.InvoiceID = invoiceID
	}
	result.Steps = append(result.Steps, s.stepOutcome(StepInvoice, payment.ID, invErr, ""))

	commission, comErr := s.generateCommission(ctx, quote, payment.ID, invoiceID)
	if comErr == nil {
		result.CommissionID = &commission.ID
	}
	result.Steps = append(result.Steps, s.stepOutcome(StepCommission, payment.ID, comErr, ""))

	// Fund allocation rows, one per item.
	allocErr := s.persistAllocations(ctx, items, payment.ID)
	result.Steps = append(result.Steps, s.stepOutcome(StepFundAllocation, payment.ID, allocErr, allocationDetail(items)))

	// 5. Supplier expenses, only once the balance is settled in full.
	if req.PaymentType == repository.PaymentTypeFull {
		recorded, failed := s.recordSupplierExpenses(ctx, quote, items, payment.ID)
		detail := fmt.Sprintf("recorded=%d failed=%d", recorded, failed)
		var stepErr error
		if failed > 0 {
			stepErr = fmt.Errorf("%d supplier expense writes failed", failed)
		}
		result.Steps = append(result.Steps, s.stepOutcome(StepSupplierExpenses, payment.ID, stepErr, detail))
	}

	// 6. Derive the quote's new payment status.
	totalPaid, sumErr := s.repo.SumPaidByQuote(ctx, quote.ID)
	if sumErr != nil {
		// Fall back to what this event alone tells us.
		totalPaid = amount
	}
	newStatus := derivePaymentStatus(req.PaymentType, totalPaid, quote.TotalCents)
	result.PaymentStatus = newStatus
	result.TotalPaidCents = totalPaid
	result.RemainingCents = max64(quote.TotalCents-totalPaid, 0)

	statusErr := s.quoteState.SetPaymentStatus(ctx, quote.ID, newStatus)
	result.Steps = append(result.Steps, s.stepOutcome(StepPaymentStatus, payment.ID, statusErr, newStatus))

	// 7. Fulfillment, if and only if the quote is now fully paid. A dispatcher
	// failure is degraded, never fatal: the payment has already succeeded and
	// must not be reversed by a downstream fulfillment error.
	if newStatus == quoterepo.PaymentStatusPaidInFull && s.dispatcher != nil {
		summary, dispErr := s.dispatcher.Dispatch(ctx, quote, items, payment.ID)
		detail := fmt.Sprintf("apiSuccess=%d apiFailed=%d manualTasks=%d",
			summary.APISuccess, summary.APIFailed, summary.ManualTasks)
		result.Steps = append(result.Steps, s.stepOutcome(StepDispatch, payment.ID, dispErr, detail))

		if dispErr == nil && (summary.APISuccess > 0 || summary.ManualTasks > 0) {
			if err := s.quoteState.MarkFulfillmentDispatched(ctx, quote.ID); err != nil {
				s.log.SettlementStep(StepDispatch, payment.ID.String(), err)
			}
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.PaymentSettled{
			BaseEvent:      events.NewBaseEvent(),
			PaymentID:      payment.ID,
			QuoteID:        quote.ID,
			AgentID:        quote.AgentID,
			QuoteReference: quote.Reference,
			PaymentStatus:  newStatus,
			AmountCents:    amount,
			Currency:       payment.Currency,
			ReceiptRef:     payment.ReceiptRef,
		})

		// Degraded paperwork is re-run out of band; the scheduler picks this
		// up and retries the idempotent generators.
		var degraded []string
		if invErr != nil {
			degraded = append(degraded, StepInvoice)
		}
		if comErr != nil {
			degraded = append(degraded, StepCommission)
		}
		if len(degraded) > 0 {
			s.bus.Publish(ctx, events.SettlementDegraded{
				BaseEvent: events.NewBaseEvent(),
				PaymentID: payment.ID,
				QuoteID:   quote.ID,
				Steps:     degraded,
			})
		}
	}

	return result, nil
}

// RetryPaperwork re-runs invoice and commission generation for a settled
// payment. Both generators are idempotent, so operators can call this safely
// after a degraded settlement.
func (s *Service) RetryPaperwork(ctx context.Context, paymentID uuid.UUID) (*transport.RetryPaperworkResponse, error) {
	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	quote, _, err := s.quotes.GetWithItems(ctx, payment.QuoteID)
	if err != nil {
		return nil, err
	}

	resp := &transport.RetryPaperworkResponse{PaymentID: payment.ID}

	invoice, invErr := s.generateInvoice(ctx, quote, payment)
	var invoiceID *uuid.UUID
	if invErr == nil {
		invoiceID = &invoice.ID
		resp.InvoiceID = invoiceID
	}
	resp.Steps = append(resp.Steps, s.stepOutcome(StepInvoice, payment.ID, invErr, ""))

	commission, comErr := s.generateCommission(ctx, quote, payment.ID, invoiceID)
	if comErr == nil {
		resp.CommissionID = &commission.ID
	}
	resp.Steps = append(resp.Steps, s.stepOutcome(StepCommission, payment.ID, comErr, ""))

	return resp, nil
}

// ListAllocations returns the fund allocation rows for a payment.
func (s *Service) ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]transport.AllocationResponse, error) {
	allocations, err := s.repo.ListAllocationsByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.AllocationResponse, len(allocations))
	for i, a := range allocations {
		out[i] = transport.AllocationResponse{
			ID:                   a.ID,
			PaymentID:            a.PaymentID,
			ItemID:               a.ItemID,
			ClientPaidCents:      a.ClientPaidCents,
			SupplierCostCents:    a.SupplierCostCents,
			PlatformFeeCents:     a.PlatformFeeCents,
			AgentCommissionCents: a.AgentCommissionCents,
			EscrowStatus:         a.EscrowStatus,
		}
	}
	return out, nil
}

// ReleaseAllocation moves one allocation's escrow forward to released.
func (s *Service) ReleaseAllocation(ctx context.Context, allocationID uuid.UUID) error {
	return s.repo.ReleaseAllocation(ctx, allocationID)
}

// persistAllocations computes and stores fund allocation rows for the payment.
func (s *Service) persistAllocations(ctx context.Context, items []quoterepo.Item, paymentID uuid.UUID) error {
	computed := AllocateFunds(items)
	rows := make([]repository.FundAllocation, len(computed))
	now := time.Now()
	for i, a := range computed {
		rows[i] = repository.FundAllocation{
			ID:                   uuid.New(),
			PaymentID:            paymentID,
			ItemID:               a.ItemID,
			ClientPaidCents:      a.ClientPaidCents,
			SupplierCostCents:    a.SupplierCostCents,
			PlatformFeeCents:     a.PlatformFeeCents,
			AgentCommissionCents: a.AgentCommissionCents,
			EscrowStatus:         repository.EscrowHeld,
			CreatedAt:            now,
		}
	}
	return s.repo.CreateAllocations(ctx, rows)
}

// stepOutcome records and logs the outcome of one best-effort step.
func (s *Service) stepOutcome(step string, paymentID uuid.UUID, err error, detail string) transport.StepOutcome {
	s.log.SettlementStep(step, paymentID.String(), err)
	outcome := transport.StepOutcome{Step: step, Detail: detail}
	if err != nil {
		outcome.Degraded = true
		outcome.Error = err.Error()
	}
	return outcome
}

// derivePaymentStatus maps a payment event onto the quote's payment status.
// A deposit always yields deposit_paid regardless of amount; a full payment or
// a cumulative total covering the quote yields paid_in_full.
func derivePaymentStatus(paymentType string, totalPaidCents, quoteTotalCents int64) string {
	switch {
	case paymentType == repository.PaymentTypeDeposit:
		return quoterepo.PaymentStatusDepositPaid
	case paymentType == repository.PaymentTypeFull, totalPaidCents >= quoteTotalCents:
		return quoterepo.PaymentStatusPaidInFull
	case totalPaidCents > 0:
		return quoterepo.PaymentStatusPartiallyPaid
	default:
		return quoterepo.PaymentStatusUnpaid
	}
}

// allocationDetail flags loss-making items so reporting can pick them up
// without scanning rows.
func allocationDetail(items []quoterepo.Item) string {
	lossMaking := 0
	for _, a := range AllocateFunds(items) {
		if a.LossMaking {
			lossMaking++
		}
	}
	if lossMaking == 0 {
		return ""
	}
	return fmt.Sprintf("loss_making_items=%d", lossMaking)
}

func receiptRef(paymentID uuid.UUID) string {
	return "RCP-" + strings.ToUpper(strings.ReplaceAll(paymentID.String(), "-", "")[:10])
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
