package adapters

import (
	"context"

	"tripdesk_backend/internal/fulfillment"
	quoterepo "tripdesk_backend/internal/quotes/repository"
	settlementsvc "tripdesk_backend/internal/settlement/service"

	"github.com/google/uuid"
)

// SettlementDispatcher exposes the fulfillment dispatcher to the settlement
// pipeline behind its narrow port.
type SettlementDispatcher struct {
	dispatcher *fulfillment.Dispatcher
}

func NewSettlementDispatcher(dispatcher *fulfillment.Dispatcher) *SettlementDispatcher {
	return &SettlementDispatcher{dispatcher: dispatcher}
}

func (a *SettlementDispatcher) Dispatch(ctx context.Context, quote *quoterepo.Quote, items []quoterepo.Item, paymentID uuid.UUID) (settlementsvc.DispatchSummary, error) {
	summary, err := a.dispatcher.Dispatch(ctx, quote, items, paymentID)
	return settlementsvc.DispatchSummary{
		APISuccess:  summary.APISuccess,
		APIFailed:   summary.APIFailed,
		ManualTasks: summary.ManualTasks,
	}, err
}

// Compile-time check.
var _ settlementsvc.FulfillmentDispatcher = (*SettlementDispatcher)(nil)
