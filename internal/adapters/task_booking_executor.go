package adapters

import (
	"context"
	"fmt"

	"tripdesk_backend/internal/fulfillment"
	taskssvc "tripdesk_backend/internal/tasks/service"
)

// TaskBookingExecutor executes a task's stored booking payload against the
// provider that originally prepared it.
type TaskBookingExecutor struct {
	registry *fulfillment.Registry
}

func NewTaskBookingExecutor(registry *fulfillment.Registry) *TaskBookingExecutor {
	return &TaskBookingExecutor{registry: registry}
}

func (a *TaskBookingExecutor) ExecuteBooking(ctx context.Context, provider string, payload []byte) (string, error) {
	p, ok := a.registry.Get(provider)
	if !ok {
		return "", fmt.Errorf("provider %s is no longer configured", provider)
	}
	return p.Book(ctx, payload)
}

// Compile-time check.
var _ taskssvc.BookingExecutor = (*TaskBookingExecutor)(nil)
