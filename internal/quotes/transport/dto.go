// Package transport contains request/response DTOs for the quotes module.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// QuoteResponse is the API representation of a quote header.
type QuoteResponse struct {
	ID                uuid.UUID  `json:"id"`
	AgentID           uuid.UUID  `json:"agentId"`
	CustomerID        uuid.UUID  `json:"customerId"`
	Reference         string     `json:"reference"`
	Status            string     `json:"status"`
	PaymentStatus     string     `json:"paymentStatus"`
	FulfillmentStatus string     `json:"fulfillmentStatus"`
	TotalCents        int64      `json:"totalCents"`
	Currency          string     `json:"currency"`
	CommissionRateBps *int       `json:"commissionRateBps,omitempty"`
	ValidUntil        *time.Time `json:"validUntil,omitempty"`
	Items             []QuoteItemResponse `json:"items,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// QuoteItemResponse is the API representation of a quote line item.
type QuoteItemResponse struct {
	ID                uuid.UUID `json:"id"`
	Type              string    `json:"type"`
	Description       string    `json:"description"`
	PriceCents        int64     `json:"priceCents"`
	SupplierCostCents *int64    `json:"supplierCostCents,omitempty"`
	SupplierName      *string   `json:"supplierName,omitempty"`
	SupplierSource    string    `json:"supplierSource"`
	ProviderCode      *string   `json:"providerCode,omitempty"`
	SortOrder         int       `json:"sortOrder"`
}
