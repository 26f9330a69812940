package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tripdesk_backend/internal/events"
	quoterepo "tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Task modes, types, and priorities as the task module understands them.
const (
	TaskModeAPI    = "api"
	TaskModeManual = "manual"

	taskTypeUploadConfirmation = "upload_confirmation"

	taskPriorityHigh   = "high"
	taskPriorityMedium = "medium"
)

// bookingTaskType maps a quote item type to its booking task type, e.g.
// hotel to book_hotel.
func bookingTaskType(itemType string) string {
	return "book_" + itemType
}

// Due windows for dispatched work.
const (
	apiTaskDue    = 24 * time.Hour
	manualTaskDue = 48 * time.Hour
	uploadTaskDue = 72 * time.Hour
)

// TaskSpec describes a fulfillment task to create.
type TaskSpec struct {
	QuoteID        uuid.UUID
	AgentID        uuid.UUID
	ItemID         *uuid.UUID
	PaymentID      uuid.UUID
	Type           string
	Title          string
	Description    string
	Priority       string
	Mode           string
	Provider       string
	DueAt          *time.Time
	RequestPreview []byte
}

// TaskCreator is the capability the dispatcher needs from the task module.
type TaskCreator interface {
	CreateFulfillmentTask(ctx context.Context, spec TaskSpec) (uuid.UUID, error)
}

// Summary reports how a quote's items were partitioned.
type Summary struct {
	APISuccess  int
	APIFailed   int
	ManualTasks int
}

// Dispatcher partitions paid quote items into automated and manual booking
// work. It never books anything itself: automated items get an execution-gated
// task carrying the prepared payload, so an agent reviews before any money
// moves at the supplier.
type Dispatcher struct {
	registry *Registry
	tasks    TaskCreator
	bus      events.Bus
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *Registry, tasks TaskCreator, log *logger.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, tasks: tasks, log: log}
}

// SetEventBus injects the domain event bus.
func (d *Dispatcher) SetEventBus(bus events.Bus) {
	d.bus = bus
}

// Dispatch walks the quote's items in order. Items whose provider integration
// accepts the prepared payload become API tasks; everything else, including
// items whose provider rejected or errored, falls back to a manual task. One
// item's failure never blocks the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, quote *quoterepo.Quote, items []quoterepo.Item, paymentID uuid.UUID) (Summary, error) {
	var summary Summary
	creationFailures := 0

	for _, item := range items {
		request := BookingRequest{
			QuoteID:     quote.ID,
			ItemID:      item.ID,
			PaymentID:   paymentID,
			ItemType:    item.Type,
			Description: item.Description,
			PriceCents:  item.PriceCents,
			Currency:    quote.Currency,
		}

		provider, ok := d.lookupProvider(item)
		if !ok {
			if d.createManualTask(ctx, quote, item, paymentID, "") {
				summary.ManualTasks++
			} else {
				creationFailures++
			}
			continue
		}

		request.Provider = provider.Name()
		payload, err := json.Marshal(request)
		if err == nil {
			err = provider.Prepare(ctx, request)
		}
		if err != nil {
			d.log.Warn("provider preparation failed, falling back to manual",
				"quote_id", quote.ID, "item_id", item.ID, "provider", provider.Name(), "error", err)
			summary.APIFailed++
			if d.createManualTask(ctx, quote, item, paymentID, provider.Name()) {
				summary.ManualTasks++
			} else {
				creationFailures++
			}
			continue
		}

		if d.createAPITask(ctx, quote, item, paymentID, provider.Name(), payload) {
			summary.APISuccess++
		} else {
			creationFailures++
			if d.createManualTask(ctx, quote, item, paymentID, provider.Name()) {
				summary.ManualTasks++
			}
		}
	}

	// One wrap-up task per dispatch with manual bookings: their supplier
	// confirmations live outside the system until the agent uploads them.
	// Gated API bookings record their confirmation ref on execution, so an
	// all-API dispatch needs no evidence follow-up.
	if summary.ManualTasks > 0 {
		due := time.Now().Add(uploadTaskDue)
		_, err := d.tasks.CreateFulfillmentTask(ctx, TaskSpec{
			QuoteID:     quote.ID,
			AgentID:     quote.AgentID,
			PaymentID:   paymentID,
			Type:        taskTypeUploadConfirmation,
			Title:       fmt.Sprintf("Upload booking confirmations for %s", quote.Reference),
			Description: "Collect and upload the supplier confirmation documents for this trip.",
			Priority:    taskPriorityMedium,
			Mode:        TaskModeManual,
			DueAt:       &due,
		})
		if err != nil {
			d.log.Warn("confirmation upload task creation failed", "quote_id", quote.ID, "error", err)
		} else {
			summary.ManualTasks++
		}
	}

	if d.bus != nil {
		d.bus.Publish(ctx, events.FulfillmentDispatched{
			BaseEvent:   events.NewBaseEvent(),
			QuoteID:     quote.ID,
			PaymentID:   paymentID,
			APISuccess:  summary.APISuccess,
			APIFailed:   summary.APIFailed,
			ManualTasks: summary.ManualTasks,
		})
	}

	if creationFailures > 0 && summary.APISuccess == 0 && summary.ManualTasks == 0 {
		return summary, fmt.Errorf("no fulfillment work could be created for quote %s", quote.ID)
	}
	return summary, nil
}

func (d *Dispatcher) lookupProvider(item quoterepo.Item) (Provider, bool) {
	if item.ProviderCode == nil || *item.ProviderCode == "" {
		return nil, false
	}
	return d.registry.Get(*item.ProviderCode)
}

// createAPITask records an execution-gated task carrying the exact payload the
// provider validated. Executing the task later sends these stored bytes.
func (d *Dispatcher) createAPITask(ctx context.Context, quote *quoterepo.Quote, item quoterepo.Item, paymentID uuid.UUID, providerName string, payload []byte) bool {
	itemID := item.ID
	due := time.Now().Add(apiTaskDue)
	_, err := d.tasks.CreateFulfillmentTask(ctx, TaskSpec{
		QuoteID:        quote.ID,
		AgentID:        quote.AgentID,
		ItemID:         &itemID,
		PaymentID:      paymentID,
		Type:           bookingTaskType(item.Type),
		Title:          fmt.Sprintf("Confirm %s booking: %s", item.Type, item.Description),
		Description:    fmt.Sprintf("Review the prepared %s booking and execute it.", providerName),
		Priority:       taskPriorityMedium,
		Mode:           TaskModeAPI,
		Provider:       providerName,
		DueAt:          &due,
		RequestPreview: payload,
	})
	if err != nil {
		d.log.Error("api task creation failed", "quote_id", quote.ID, "item_id", item.ID, "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) createManualTask(ctx context.Context, quote *quoterepo.Quote, item quoterepo.Item, paymentID uuid.UUID, providerName string) bool {
	itemID := item.ID
	due := time.Now().Add(manualTaskDue)
	description := fmt.Sprintf("Book this %s with the supplier and record the confirmation reference.", item.Type)
	if providerName != "" {
		description = fmt.Sprintf("Automated %s booking was not possible. %s", providerName, description)
	}
	_, err := d.tasks.CreateFulfillmentTask(ctx, TaskSpec{
		QuoteID:     quote.ID,
		AgentID:     quote.AgentID,
		ItemID:      &itemID,
		PaymentID:   paymentID,
		Type:        bookingTaskType(item.Type),
		Title:       fmt.Sprintf("Book %s: %s", item.Type, item.Description),
		Description: description,
		Priority:    taskPriorityHigh,
		Mode:        TaskModeManual,
		DueAt:       &due,
	})
	if err != nil {
		d.log.Error("manual task creation failed", "quote_id", quote.ID, "item_id", item.ID, "error", err)
		return false
	}
	return true
}
