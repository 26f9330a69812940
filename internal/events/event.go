// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"tripdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Settlement Domain Events
// =============================================================================

// PaymentSettled is published after a settlement run completes, whether or not
// individual paperwork steps degraded.
type PaymentSettled struct {
	BaseEvent
	PaymentID      uuid.UUID `json:"paymentId"`
	QuoteID        uuid.UUID `json:"quoteId"`
	AgentID        uuid.UUID `json:"agentId"`
	QuoteReference string    `json:"quoteReference"`
	PaymentStatus  string    `json:"paymentStatus"`
	AmountCents    int64     `json:"amountCents"`
	Currency       string    `json:"currency"`
	ReceiptRef     string    `json:"receiptRef"`
}

func (e PaymentSettled) EventName() string { return "settlement.payment.settled" }

// SettlementDegraded is published when invoice or commission generation
// failed during a settlement run. The scheduler subscribes and enqueues a
// paperwork retry for the payment.
type SettlementDegraded struct {
	BaseEvent
	PaymentID uuid.UUID `json:"paymentId"`
	QuoteID   uuid.UUID `json:"quoteId"`
	Steps     []string  `json:"steps"`
}

func (e SettlementDegraded) EventName() string { return "settlement.payment.degraded" }

// =============================================================================
// Fulfillment Domain Events
// =============================================================================

// FulfillmentDispatched is published when a fully paid quote's items have been
// partitioned into automated and manual fulfillment work.
type FulfillmentDispatched struct {
	BaseEvent
	QuoteID     uuid.UUID `json:"quoteId"`
	PaymentID   uuid.UUID `json:"paymentId"`
	APISuccess  int       `json:"apiSuccess"`
	APIFailed   int       `json:"apiFailed"`
	ManualTasks int       `json:"manualTasks"`
}

func (e FulfillmentDispatched) EventName() string { return "fulfillment.dispatched" }

// =============================================================================
// Task Domain Events
// =============================================================================

// TaskCreated is published when a fulfillment task is created. The email
// module subscribes to notify the assigned agent.
type TaskCreated struct {
	BaseEvent
	TaskID   uuid.UUID  `json:"taskId"`
	QuoteID  uuid.UUID  `json:"quoteId"`
	AgentID  uuid.UUID  `json:"agentId"`
	Title    string     `json:"title"`
	Priority string     `json:"priority"`
	Mode     string     `json:"mode"`
	DueAt    *time.Time `json:"dueAt,omitempty"`
}

func (e TaskCreated) EventName() string { return "tasks.task.created" }

// TaskOverdue is published by the scheduler when a task passes its due time
// without reaching a terminal state.
type TaskOverdue struct {
	BaseEvent
	TaskID  uuid.UUID `json:"taskId"`
	QuoteID uuid.UUID `json:"quoteId"`
	AgentID uuid.UUID `json:"agentId"`
	Title   string    `json:"title"`
	DueAt   time.Time `json:"dueAt"`
}

func (e TaskOverdue) EventName() string { return "tasks.task.overdue" }
