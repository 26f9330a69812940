package adapters

import (
	"context"

	settlementsvc "tripdesk_backend/internal/settlement/service"
	"tripdesk_backend/internal/suppliers"

	"github.com/google/uuid"
)

// SettlementSupplierResolver lets the settlement pipeline resolve supplier
// names to supplier records when recording expenses.
type SettlementSupplierResolver struct {
	repo *suppliers.Repository
}

func NewSettlementSupplierResolver(repo *suppliers.Repository) *SettlementSupplierResolver {
	return &SettlementSupplierResolver{repo: repo}
}

func (a *SettlementSupplierResolver) FindOrCreate(ctx context.Context, agentID uuid.UUID, name string) (*settlementsvc.SupplierRef, error) {
	supplier, err := a.repo.FindOrCreate(ctx, agentID, name)
	if err != nil {
		return nil, err
	}
	return &settlementsvc.SupplierRef{ID: supplier.ID, Name: supplier.Name}, nil
}

// Compile-time check.
var _ settlementsvc.SupplierResolver = (*SettlementSupplierResolver)(nil)
