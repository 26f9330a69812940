package service

import (
	"tripdesk_backend/internal/quotes/repository"

	"github.com/google/uuid"
)

// Platform fee, in basis points of the client price, keyed by the item's
// supplier source. Unknown sources pay no platform fee.
const (
	feeBpsAPISourced      = 500
	feeBpsOfflinePlatform = 800
	feeBpsOfflineAgent    = 0
)

// When an item carries no supplier cost, accounting assumes 85% of the client
// price. This stand-in is used only for fund allocation, never for booking.
const defaultSupplierCostBps = 8500

// Allocation is the computed split of one item's paid amount.
type Allocation struct {
	ItemID               uuid.UUID
	ClientPaidCents      int64
	SupplierCostCents    int64
	PlatformFeeCents     int64
	AgentCommissionCents int64
	LossMaking           bool
}

// platformFeeBps returns the platform's cut for a supplier source.
func platformFeeBps(source string) int64 {
	switch source {
	case repository.SourceAPI:
		return feeBpsAPISourced
	case repository.SourceOfflinePlatform:
		return feeBpsOfflinePlatform
	case repository.SourceOfflineAgent:
		return feeBpsOfflineAgent
	default:
		return 0
	}
}

// AllocateFunds splits each item's client price into supplier cost, platform
// fee, and agent commission. The commission is computed as the exact
// remainder, so client paid always equals cost + fee + commission to the cent.
//
// A negative commission is legitimate: it means supplier cost plus fee exceeds
// the price. It is surfaced as-is with LossMaking set, so downstream reporting
// can flag the item; the calculator never clamps it.
func AllocateFunds(items []repository.Item) []Allocation {
	allocations := make([]Allocation, len(items))
	for i, item := range items {
		supplierCost := item.PriceCents * defaultSupplierCostBps / 10000
		if item.SupplierCostCents != nil {
			supplierCost = *item.SupplierCostCents
		}

		fee := item.PriceCents * platformFeeBps(item.SupplierSource) / 10000
		commission := item.PriceCents - supplierCost - fee

		allocations[i] = Allocation{
			ItemID:               item.ID,
			ClientPaidCents:      item.PriceCents,
			SupplierCostCents:    supplierCost,
			PlatformFeeCents:     fee,
			AgentCommissionCents: commission,
			LossMaking:           commission < 0,
		}
	}
	return allocations
}
