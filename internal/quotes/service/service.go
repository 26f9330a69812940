package service

import (
	"context"

	"tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/internal/quotes/transport"

	"github.com/google/uuid"
)

// Service provides read access to quotes for the back office and the two
// narrow writes the settlement pipeline is allowed to make.
type Service struct {
	repo *repository.Repository
}

// New creates a new quotes service.
func New(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// GetWithItems loads a quote together with its line items.
func (s *Service) GetWithItems(ctx context.Context, id uuid.UUID) (*repository.Quote, []repository.Item, error) {
	quote, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.GetItemsByQuoteID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return quote, items, nil
}

// Get returns the API view of a quote with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transport.QuoteResponse, error) {
	quote, items, err := s.GetWithItems(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toQuoteResponse(quote)
	resp.Items = make([]transport.QuoteItemResponse, len(items))
	for i, it := range items {
		resp.Items[i] = transport.QuoteItemResponse{
			ID:                it.ID,
			Type:              it.Type,
			Description:       it.Description,
			PriceCents:        it.PriceCents,
			SupplierCostCents: it.SupplierCostCents,
			SupplierName:      it.SupplierName,
			SupplierSource:    it.SupplierSource,
			ProviderCode:      it.ProviderCode,
			SortOrder:         it.SortOrder,
		}
	}
	return resp, nil
}

// ListByPaymentStatus returns an agent's quotes filtered by payment status.
func (s *Service) ListByPaymentStatus(ctx context.Context, agentID uuid.UUID, paymentStatus string) ([]transport.QuoteResponse, error) {
	quotes, err := s.repo.ListByPaymentStatus(ctx, agentID, paymentStatus)
	if err != nil {
		return nil, err
	}
	out := make([]transport.QuoteResponse, len(quotes))
	for i := range quotes {
		out[i] = *toQuoteResponse(&quotes[i])
	}
	return out, nil
}

// SetPaymentStatus updates the derived payment status of a quote.
func (s *Service) SetPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus string) error {
	return s.repo.SetPaymentStatus(ctx, id, paymentStatus)
}

// MarkFulfillmentDispatched flags the quote as having fulfillment work created.
func (s *Service) MarkFulfillmentDispatched(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkFulfillmentDispatched(ctx, id)
}

func toQuoteResponse(q *repository.Quote) *transport.QuoteResponse {
	return &transport.QuoteResponse{
		ID:                q.ID,
		AgentID:           q.AgentID,
		CustomerID:        q.CustomerID,
		Reference:         q.Reference,
		Status:            q.Status,
		PaymentStatus:     q.PaymentStatus,
		FulfillmentStatus: q.FulfillmentStatus,
		TotalCents:        q.TotalCents,
		Currency:          q.Currency,
		CommissionRateBps: q.CommissionRateBps,
		ValidUntil:        q.ValidUntil,
		CreatedAt:         q.CreatedAt,
		UpdatedAt:         q.UpdatedAt,
	}
}
