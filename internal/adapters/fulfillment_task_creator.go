package adapters

import (
	"context"

	"tripdesk_backend/internal/fulfillment"
	taskssvc "tripdesk_backend/internal/tasks/service"

	"github.com/google/uuid"
)

// FulfillmentTaskCreator lets the dispatcher open tasks without depending on
// the tasks module directly.
type FulfillmentTaskCreator struct {
	tasks *taskssvc.Service
}

func NewFulfillmentTaskCreator(tasks *taskssvc.Service) *FulfillmentTaskCreator {
	return &FulfillmentTaskCreator{tasks: tasks}
}

func (a *FulfillmentTaskCreator) CreateFulfillmentTask(ctx context.Context, spec fulfillment.TaskSpec) (uuid.UUID, error) {
	paymentID := spec.PaymentID
	created, err := a.tasks.Create(ctx, taskssvc.CreateTaskInput{
		QuoteID:        spec.QuoteID,
		AgentID:        spec.AgentID,
		ItemID:         spec.ItemID,
		PaymentID:      &paymentID,
		Type:           spec.Type,
		Title:          spec.Title,
		Description:    spec.Description,
		Priority:       spec.Priority,
		Mode:           spec.Mode,
		Provider:       spec.Provider,
		DueAt:          spec.DueAt,
		RequestPreview: spec.RequestPreview,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return created.ID, nil
}

// Compile-time check.
var _ fulfillment.TaskCreator = (*FulfillmentTaskCreator)(nil)
