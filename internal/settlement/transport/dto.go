// Package transport contains request/response DTOs for the settlement module.
package transport

import (
	"github.com/google/uuid"
)

// ConfirmPaymentRequest is the payload of the payment confirmation entrypoint.
// The processor transaction id is verified against the processor before
// anything is persisted.
type ConfirmPaymentRequest struct {
	QuoteID        uuid.UUID `json:"quoteId" validate:"required"`
	TransactionID  string    `json:"transactionId" validate:"required"`
	PaymentType    string    `json:"paymentType" validate:"required,oneof=deposit full"`
	AmountCents    int64     `json:"amountCents" validate:"required,gt=0"`
	Currency       string    `json:"currency" validate:"required,len=3"`
}

// StepOutcome describes how a single post-payment step ended.
type StepOutcome struct {
	Step     string `json:"step"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// SettlementResult is the response of the payment confirmation entrypoint.
// It always reflects the true state of the money; nullable ids mark paperwork
// that failed to generate and can be re-run later.
type SettlementResult struct {
	PaymentID      uuid.UUID     `json:"paymentId"`
	InvoiceID      *uuid.UUID    `json:"invoiceId"`
	CommissionID   *uuid.UUID    `json:"commissionId"`
	PaymentStatus  string        `json:"paymentStatus"`
	TotalPaidCents int64         `json:"totalPaidCents"`
	RemainingCents int64         `json:"remainingCents"`
	ReceiptRef     string        `json:"receiptRef"`
	Steps          []StepOutcome `json:"steps"`
}

// AllocationResponse is the API representation of one fund allocation row.
type AllocationResponse struct {
	ID                   uuid.UUID `json:"id"`
	PaymentID            uuid.UUID `json:"paymentId"`
	ItemID               uuid.UUID `json:"itemId"`
	ClientPaidCents      int64     `json:"clientPaidCents"`
	SupplierCostCents    int64     `json:"supplierCostCents"`
	PlatformFeeCents     int64     `json:"platformFeeCents"`
	AgentCommissionCents int64     `json:"agentCommissionCents"`
	EscrowStatus         string    `json:"escrowStatus"`
}

// RetryPaperworkResponse reports the outcome of re-running invoice and
// commission generation for an already-settled payment.
type RetryPaperworkResponse struct {
	PaymentID    uuid.UUID     `json:"paymentId"`
	InvoiceID    *uuid.UUID    `json:"invoiceId"`
	CommissionID *uuid.UUID    `json:"commissionId"`
	Steps        []StepOutcome `json:"steps"`
}
