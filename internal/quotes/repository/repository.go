package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ── Status enums ──────────────────────────────────────────────────────────────

// Quote lifecycle statuses.
const (
	StatusDraft    = "draft"
	StatusSent     = "sent"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Quote payment statuses.
const (
	PaymentStatusUnpaid        = "unpaid"
	PaymentStatusDepositPaid   = "deposit_paid"
	PaymentStatusPartiallyPaid = "partially_paid"
	PaymentStatusPaidInFull    = "paid_in_full"
)

// Quote fulfillment statuses.
const (
	FulfillmentNone       = "none"
	FulfillmentDispatched = "dispatched"
)

// Item types.
const (
	ItemTypeFlight   = "flight"
	ItemTypeHotel    = "hotel"
	ItemTypeActivity = "activity"
	ItemTypeTransfer = "transfer"
)

// Supplier sources. API-sourced items are candidates for automated booking;
// the two offline sources differ only in who sourced the inventory, which
// drives the platform fee during fund allocation.
const (
	SourceAPI             = "api"
	SourceOfflinePlatform = "offline_platform"
	SourceOfflineAgent    = "offline_agent"
)

// ── Domain Models ─────────────────────────────────────────────────────────────

// Quote is the database model for a priced travel proposal.
type Quote struct {
	ID                uuid.UUID  `db:"id"`
	AgentID           uuid.UUID  `db:"agent_id"`
	CustomerID        uuid.UUID  `db:"customer_id"`
	Reference         string     `db:"reference"`
	Status            string     `db:"status"`
	PaymentStatus     string     `db:"payment_status"`
	FulfillmentStatus string     `db:"fulfillment_status"`
	TotalCents        int64      `db:"total_cents"`
	Currency          string     `db:"currency"`
	CommissionRateBps *int       `db:"commission_rate_bps"`
	ValidUntil        *time.Time `db:"valid_until"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// Item is the database model for one bookable unit inside a quote.
// Items are immutable once a payment references the quote.
type Item struct {
	ID                uuid.UUID `db:"id"`
	QuoteID           uuid.UUID `db:"quote_id"`
	Type              string    `db:"type"`
	Description       string    `db:"description"`
	PriceCents        int64     `db:"price_cents"`
	SupplierCostCents *int64    `db:"supplier_cost_cents"`
	SupplierName      *string   `db:"supplier_name"`
	SupplierSource    string    `db:"supplier_source"`
	ProviderCode      *string   `db:"provider_code"`
	SortOrder         int       `db:"sort_order"`
	CreatedAt         time.Time `db:"created_at"`
}

const quoteNotFoundMsg = "quote not found"

// Repository provides database operations for quotes and their items.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new quotes repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a single quote.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	query := `
		SELECT id, agent_id, customer_id, reference, status, payment_status,
		       fulfillment_status, total_cents, currency, commission_rate_bps,
		       valid_until, created_at, updated_at
		FROM td_quotes WHERE id = $1`

	var q Quote
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&q.ID, &q.AgentID, &q.CustomerID, &q.Reference, &q.Status, &q.PaymentStatus,
		&q.FulfillmentStatus, &q.TotalCents, &q.Currency, &q.CommissionRateBps,
		&q.ValidUntil, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(quoteNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	return &q, nil
}

// GetItemsByQuoteID fetches a quote's line items in display order.
func (r *Repository) GetItemsByQuoteID(ctx context.Context, quoteID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, quote_id, type, description, price_cents, supplier_cost_cents,
		       supplier_name, supplier_source, provider_code, sort_order, created_at
		FROM td_quote_items WHERE quote_id = $1 ORDER BY sort_order`

	rows, err := r.pool.Query(ctx, query, quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.QuoteID, &it.Type, &it.Description, &it.PriceCents,
			&it.SupplierCostCents, &it.SupplierName, &it.SupplierSource,
			&it.ProviderCode, &it.SortOrder, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quote item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListByPaymentStatus lists quotes with a given payment status for an agent.
func (r *Repository) ListByPaymentStatus(ctx context.Context, agentID uuid.UUID, paymentStatus string) ([]Quote, error) {
	query := `
		SELECT id, agent_id, customer_id, reference, status, payment_status,
		       fulfillment_status, total_cents, currency, commission_rate_bps,
		       valid_until, created_at, updated_at
		FROM td_quotes
		WHERE agent_id = $1 AND payment_status = $2
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, agentID, paymentStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(
			&q.ID, &q.AgentID, &q.CustomerID, &q.Reference, &q.Status, &q.PaymentStatus,
			&q.FulfillmentStatus, &q.TotalCents, &q.Currency, &q.CommissionRateBps,
			&q.ValidUntil, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// SetPaymentStatus updates the payment status on a quote. This is the only
// quote mutation settlement is allowed to perform besides the fulfillment flag.
func (r *Repository) SetPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE td_quotes SET payment_status = $2, updated_at = $3 WHERE id = $1`,
		id, paymentStatus, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(quoteNotFoundMsg)
	}
	return nil
}

// MarkFulfillmentDispatched flags the quote as having had fulfillment work
// created for it (API bookings prepared or manual tasks opened).
func (r *Repository) MarkFulfillmentDispatched(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE td_quotes SET fulfillment_status = $2, updated_at = $3 WHERE id = $1`,
		id, FulfillmentDispatched, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update fulfillment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(quoteNotFoundMsg)
	}
	return nil
}
