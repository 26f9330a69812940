package service

import (
	"testing"

	quoterepo "tripdesk_backend/internal/quotes/repository"

	"github.com/google/uuid"
)

func ptr64(v int64) *int64 { return &v }

func TestAllocateFunds_OfflineAgentItemPaysNoPlatformFee(t *testing.T) {
	items := []quoterepo.Item{
		{
			ID:                uuid.New(),
			Type:              quoterepo.ItemTypeHotel,
			PriceCents:        100000,
			SupplierCostCents: ptr64(70000),
			SupplierSource:    quoterepo.SourceOfflineAgent,
		},
	}

	allocations := AllocateFunds(items)
	if len(allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocations))
	}

	a := allocations[0]
	if a.SupplierCostCents != 70000 {
		t.Fatalf("expected supplier cost 70000, got %d", a.SupplierCostCents)
	}
	if a.PlatformFeeCents != 0 {
		t.Fatalf("expected no platform fee for offline_agent, got %d", a.PlatformFeeCents)
	}
	if a.AgentCommissionCents != 30000 {
		t.Fatalf("expected commission 30000, got %d", a.AgentCommissionCents)
	}
	if a.LossMaking {
		t.Fatal("expected profitable item")
	}
}

func TestAllocateFunds_APISourcedItemPaysFivePercentFee(t *testing.T) {
	items := []quoterepo.Item{
		{
			ID:                uuid.New(),
			Type:              quoterepo.ItemTypeFlight,
			PriceCents:        100000,
			SupplierCostCents: ptr64(70000),
			SupplierSource:    quoterepo.SourceAPI,
		},
	}

	a := AllocateFunds(items)[0]
	if a.PlatformFeeCents != 5000 {
		t.Fatalf("expected fee 5000, got %d", a.PlatformFeeCents)
	}
	if a.AgentCommissionCents != 25000 {
		t.Fatalf("expected commission 25000, got %d", a.AgentCommissionCents)
	}
}

func TestAllocateFunds_MissingSupplierCostDefaultsTo85Percent(t *testing.T) {
	items := []quoterepo.Item{
		{
			ID:             uuid.New(),
			Type:           quoterepo.ItemTypeActivity,
			PriceCents:     100000,
			SupplierSource: quoterepo.SourceOfflinePlatform,
		},
	}

	a := AllocateFunds(items)[0]
	if a.SupplierCostCents != 85000 {
		t.Fatalf("expected defaulted supplier cost 85000, got %d", a.SupplierCostCents)
	}
	if a.PlatformFeeCents != 8000 {
		t.Fatalf("expected fee 8000, got %d", a.PlatformFeeCents)
	}
	if a.AgentCommissionCents != 7000 {
		t.Fatalf("expected commission 7000, got %d", a.AgentCommissionCents)
	}
}

func TestAllocateFunds_NegativeCommissionSurfacedNotClamped(t *testing.T) {
	items := []quoterepo.Item{
		{
			ID:                uuid.New(),
			Type:              quoterepo.ItemTypeHotel,
			PriceCents:        100000,
			SupplierCostCents: ptr64(98000),
			SupplierSource:    quoterepo.SourceOfflinePlatform,
		},
	}

	a := AllocateFunds(items)[0]
	if a.AgentCommissionCents != -6000 {
		t.Fatalf("expected commission -6000, got %d", a.AgentCommissionCents)
	}
	if !a.LossMaking {
		t.Fatal("expected loss-making flag")
	}
}

func TestAllocateFunds_SplitAlwaysSumsToClientPrice(t *testing.T) {
	items := []quoterepo.Item{
		{ID: uuid.New(), PriceCents: 99999, SupplierCostCents: ptr64(12345), SupplierSource: quoterepo.SourceAPI},
		{ID: uuid.New(), PriceCents: 1, SupplierSource: quoterepo.SourceOfflinePlatform},
		{ID: uuid.New(), PriceCents: 333333, SupplierCostCents: ptr64(400000), SupplierSource: quoterepo.SourceOfflineAgent},
		{ID: uuid.New(), PriceCents: 0, SupplierSource: "unknown"},
	}

	for i, a := range AllocateFunds(items) {
		sum := a.SupplierCostCents + a.PlatformFeeCents + a.AgentCommissionCents
		if sum != a.ClientPaidCents {
			t.Fatalf("item %d: split %d does not sum to client paid %d", i, sum, a.ClientPaidCents)
		}
		if a.ClientPaidCents != items[i].PriceCents {
			t.Fatalf("item %d: client paid %d, want price %d", i, a.ClientPaidCents, items[i].PriceCents)
		}
	}
}

func TestAllocateFunds_EmptyItems(t *testing.T) {
	if got := AllocateFunds(nil); len(got) != 0 {
		t.Fatalf("expected no allocations, got %d", len(got))
	}
}
