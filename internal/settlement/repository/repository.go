package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ── Status enums ──────────────────────────────────────────────────────────────

// Payment types.
const (
	PaymentTypeDeposit = "deposit"
	PaymentTypeFull    = "full"
)

// Invoice statuses. Status only advances: sent → partial → paid.
const (
	InvoiceStatusSent    = "sent"
	InvoiceStatusPartial = "partial"
	InvoiceStatusPaid    = "paid"
)

// Commission statuses. Status only advances forward.
const (
	CommissionStatusPending  = "pending"
	CommissionStatusApproved = "approved"
	CommissionStatusPaid     = "paid"
)

// Expense categories and statuses.
const (
	ExpenseCategorySupplierPayment = "supplier_payment"
	ExpenseCategoryProcessingFee   = "processing_fee"

	ExpenseStatusPending  = "pending"
	ExpenseStatusApproved = "approved"
	ExpenseStatusPaid     = "paid"
)

// Escrow statuses for fund allocations. Transitions only held → released.
const (
	EscrowHeld     = "held"
	EscrowReleased = "released"
)

// ── Domain Models ─────────────────────────────────────────────────────────────

// Payment is an immutable record of a captured charge. The only mutation ever
// applied is attaching the invoice id once the invoice exists.
type Payment struct {
	ID             uuid.UUID  `db:"id"`
	QuoteID        uuid.UUID  `db:"quote_id"`
	AmountCents    int64      `db:"amount_cents"`
	Currency       string     `db:"currency"`
	Type           string     `db:"type"`
	ProcessorTxnID string     `db:"processor_txn_id"`
	InvoiceID      *uuid.UUID `db:"invoice_id"`
	ReceiptRef     string     `db:"receipt_ref"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Invoice is the billing document for a quote. The first payment creates it;
// later payments update the paid and remaining amounts in place. PaymentID
// records which payment created the document.
type Invoice struct {
	ID             uuid.UUID `db:"id"`
	QuoteID        uuid.UUID `db:"quote_id"`
	PaymentID      uuid.UUID `db:"payment_id"`
	Number         string    `db:"number"`
	SubtotalCents  int64     `db:"subtotal_cents"`
	TaxCents       int64     `db:"tax_cents"`
	TotalCents     int64     `db:"total_cents"`
	PaidCents      int64     `db:"paid_cents"`
	RemainingCents int64     `db:"remaining_cents"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Commission is the agent's earned amount on a settled quote.
type Commission struct {
	ID            uuid.UUID  `db:"id"`
	QuoteID       uuid.UUID  `db:"quote_id"`
	PaymentID     uuid.UUID  `db:"payment_id"`
	InvoiceID     *uuid.UUID `db:"invoice_id"`
	AgentID       uuid.UUID  `db:"agent_id"`
	RateBps       int        `db:"rate_bps"`
	AmountCents   int64      `db:"amount_cents"`
	Status        string     `db:"status"`
	EarnedAt      time.Time  `db:"earned_at"`
	PaidAt        *time.Time `db:"paid_at"`
	PaymentMethod *string    `db:"payment_method"`
}

// Expense is a supplier-payment or platform-fee record.
type Expense struct {
	ID          uuid.UUID  `db:"id"`
	QuoteID     uuid.UUID  `db:"quote_id"`
	PaymentID   uuid.UUID  `db:"payment_id"`
	ItemID      *uuid.UUID `db:"item_id"`
	SupplierID  *uuid.UUID `db:"supplier_id"`
	Category    string     `db:"category"`
	AmountCents int64      `db:"amount_cents"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
}

// FundAllocation splits one item's paid amount into supplier cost, platform
// fee, and agent commission. Invariant: client paid = cost + fee + commission.
type FundAllocation struct {
	ID                   uuid.UUID `db:"id"`
	PaymentID            uuid.UUID `db:"payment_id"`
	ItemID               uuid.UUID `db:"item_id"`
	ClientPaidCents      int64     `db:"client_paid_cents"`
	SupplierCostCents    int64     `db:"supplier_cost_cents"`
	PlatformFeeCents     int64     `db:"platform_fee_cents"`
	AgentCommissionCents int64     `db:"agent_commission_cents"`
	EscrowStatus         string    `db:"escrow_status"`
	CreatedAt            time.Time `db:"created_at"`
}

// Repository provides database operations for settlement artifacts.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new settlement repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ── Payments ──────────────────────────────────────────────────────────────────

// CreatePayment persists the payment row. A second delivery of the same
// processor transaction hits the unique index and surfaces as a conflict;
// the webhook handler maps it to 409 so duplicate webhooks never settle twice.
func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO td_payments (id, quote_id, amount_cents, currency, type,
			processor_txn_id, invoice_id, receipt_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.QuoteID, p.AmountCents, p.Currency, p.Type,
		p.ProcessorTxnID, p.InvoiceID, p.ReceiptRef, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("payment already settled for this transaction")
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetPaymentByID fetches a payment.
func (r *Repository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	query := `
		SELECT id, quote_id, amount_cents, currency, type, processor_txn_id,
		       invoice_id, receipt_ref, created_at
		FROM td_payments WHERE id = $1`

	var p Payment
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.QuoteID, &p.AmountCents, &p.Currency, &p.Type,
		&p.ProcessorTxnID, &p.InvoiceID, &p.ReceiptRef, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("payment not found")
		}
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	return &p, nil
}

// AttachInvoice links the invoice back onto the payment row. This is the only
// payment mutation, performed after the invoice insert because the invoice id
// does not exist earlier.
func (r *Repository) AttachInvoice(ctx context.Context, paymentID, invoiceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE td_payments SET invoice_id = $2 WHERE id = $1`, paymentID, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to attach invoice to payment: %w", err)
	}
	return nil
}

// SumPaidByQuote returns the cumulative captured amount for a quote.
func (r *Repository) SumPaidByQuote(ctx context.Context, quoteID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM td_payments WHERE quote_id = $1`,
		quoteID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	return total, nil
}

// ── Invoices ──────────────────────────────────────────────────────────────────

// NextInvoiceNumber atomically generates the next invoice number.
func (r *Repository) NextInvoiceNumber(ctx context.Context) (string, error) {
	var nextNum int
	query := `
		INSERT INTO td_invoice_counters (year, last_number)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_number = td_invoice_counters.last_number + 1
		RETURNING last_number`

	year := time.Now().Year()
	if err := r.pool.QueryRow(ctx, query, year).Scan(&nextNum); err != nil {
		return "", fmt.Errorf("failed to generate invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%d-%04d", year, nextNum), nil
}

// CreateInvoice persists the invoice. The unique index on quote_id enforces
// one invoice per quote: a concurrent first payment loses the insert race and
// applies its amount to the winner's invoice instead.
func (r *Repository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	query := `
		INSERT INTO td_invoices (id, quote_id, payment_id, number, subtotal_cents,
			tax_cents, total_cents, paid_cents, remaining_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		inv.ID, inv.QuoteID, inv.PaymentID, inv.Number, inv.SubtotalCents,
		inv.TaxCents, inv.TotalCents, inv.PaidCents, inv.RemainingCents,
		inv.Status, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("invoice already exists for this quote")
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// GetInvoiceByID fetches one invoice.
func (r *Repository) GetInvoiceByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.getInvoice(ctx, `WHERE id = $1`, id)
}

// GetInvoiceByQuoteID fetches the quote's invoice, if one exists yet.
func (r *Repository) GetInvoiceByQuoteID(ctx context.Context, quoteID uuid.UUID) (*Invoice, error) {
	return r.getInvoice(ctx, `WHERE quote_id = $1`, quoteID)
}

func (r *Repository) getInvoice(ctx context.Context, where string, arg any) (*Invoice, error) {
	query := `
		SELECT id, quote_id, payment_id, number, subtotal_cents, tax_cents,
		       total_cents, paid_cents, remaining_cents, status, created_at, updated_at
		FROM td_invoices ` + where

	var inv Invoice
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&inv.ID, &inv.QuoteID, &inv.PaymentID, &inv.Number, &inv.SubtotalCents,
		&inv.TaxCents, &inv.TotalCents, &inv.PaidCents, &inv.RemainingCents,
		&inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("invoice not found")
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	return &inv, nil
}

// UpdateInvoicePayment records an additional captured amount on an existing
// invoice as subsequent partial payments arrive.
func (r *Repository) UpdateInvoicePayment(ctx context.Context, id uuid.UUID, paidCents, remainingCents int64, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE td_invoices SET paid_cents = $2, remaining_cents = $3, status = $4, updated_at = $5
		WHERE id = $1`,
		id, paidCents, remainingCents, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update invoice payment: %w", err)
	}
	return nil
}

// ── Commissions ───────────────────────────────────────────────────────────────

// CreateCommission persists the agent commission for a settled payment.
func (r *Repository) CreateCommission(ctx context.Context, c *Commission) error {
	query := `
		INSERT INTO td_commissions (id, quote_id, payment_id, invoice_id, agent_id,
			rate_bps, amount_cents, status, earned_at, paid_at, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.QuoteID, c.PaymentID, c.InvoiceID, c.AgentID,
		c.RateBps, c.AmountCents, c.Status, c.EarnedAt, c.PaidAt, c.PaymentMethod)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("commission already exists for this payment")
		}
		return fmt.Errorf("failed to insert commission: %w", err)
	}
	return nil
}

// GetCommissionByPaymentID fetches the commission for a payment, if any.
func (r *Repository) GetCommissionByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Commission, error) {
	query := `
		SELECT id, quote_id, payment_id, invoice_id, agent_id, rate_bps,
		       amount_cents, status, earned_at, paid_at, payment_method
		FROM td_commissions WHERE payment_id = $1`

	var c Commission
	err := r.pool.QueryRow(ctx, query, paymentID).Scan(
		&c.ID, &c.QuoteID, &c.PaymentID, &c.InvoiceID, &c.AgentID, &c.RateBps,
		&c.AmountCents, &c.Status, &c.EarnedAt, &c.PaidAt, &c.PaymentMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("commission not found")
		}
		return nil, fmt.Errorf("failed to fetch commission: %w", err)
	}
	return &c, nil
}

// ── Expenses ──────────────────────────────────────────────────────────────────

// CreateExpense persists an expense row. The partial unique index on
// (payment_id, item_id) makes supplier-payment expenses idempotent per
// settlement event; a re-run simply reports a conflict for rows already written.
func (r *Repository) CreateExpense(ctx context.Context, e *Expense) error {
	query := `
		INSERT INTO td_expenses (id, quote_id, payment_id, item_id, supplier_id,
			category, amount_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.QuoteID, e.PaymentID, e.ItemID, e.SupplierID,
		e.Category, e.AmountCents, e.Status, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("expense already recorded for this item")
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

// ── Fund Allocations ──────────────────────────────────────────────────────────

// CreateAllocations inserts the allocation rows for a payment in one transaction.
func (r *Repository) CreateAllocations(ctx context.Context, allocations []FundAllocation) error {
	if len(allocations) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO td_fund_allocations (id, payment_id, item_id, client_paid_cents,
			supplier_cost_cents, platform_fee_cents, agent_commission_cents,
			escrow_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, a := range allocations {
		if _, err := tx.Exec(ctx, query,
			a.ID, a.PaymentID, a.ItemID, a.ClientPaidCents, a.SupplierCostCents,
			a.PlatformFeeCents, a.AgentCommissionCents, a.EscrowStatus, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert fund allocation: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListAllocationsByPayment returns the allocation rows for a payment.
func (r *Repository) ListAllocationsByPayment(ctx context.Context, paymentID uuid.UUID) ([]FundAllocation, error) {
	query := `
		SELECT id, payment_id, item_id, client_paid_cents, supplier_cost_cents,
		       platform_fee_cents, agent_commission_cents, escrow_status, created_at
		FROM td_fund_allocations WHERE payment_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fund allocations: %w", err)
	}
	defer rows.Close()

	var allocations []FundAllocation
	for rows.Next() {
		var a FundAllocation
		if err := rows.Scan(
			&a.ID, &a.PaymentID, &a.ItemID, &a.ClientPaidCents, &a.SupplierCostCents,
			&a.PlatformFeeCents, &a.AgentCommissionCents, &a.EscrowStatus, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fund allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// ReleaseAllocation moves an allocation's escrow from held to released.
// The WHERE clause makes the transition forward-only.
func (r *Repository) ReleaseAllocation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE td_fund_allocations SET escrow_status = $2
		WHERE id = $1 AND escrow_status = $3`,
		id, EscrowReleased, EscrowHeld)
	if err != nil {
		return fmt.Errorf("failed to release allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("allocation not found or already released")
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
