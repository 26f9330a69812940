// Package transport contains request/response DTOs for the tasks module.
package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskResponse is the API representation of a task. The prepared booking
// payload is never embedded here; agents fetch it through the execution
// endpoint's preview action.
type TaskResponse struct {
	ID              uuid.UUID  `json:"id"`
	QuoteID         uuid.UUID  `json:"quoteId"`
	ItemID          *uuid.UUID `json:"itemId,omitempty"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	Mode            string     `json:"mode"`
	Provider        *string    `json:"provider,omitempty"`
	IsReady         bool       `json:"isReady"`
	HasPayload      bool       `json:"hasPayload"`
	BlockedReason   *string    `json:"blockedReason,omitempty"`
	ConfirmationRef *string    `json:"confirmationRef,omitempty"`
	EvidenceFileKey *string    `json:"evidenceFileKey,omitempty"`
	DueAt           *time.Time `json:"dueAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CreateTaskRequest creates an ad-hoc manual task.
type CreateTaskRequest struct {
	QuoteID     uuid.UUID  `json:"quoteId" validate:"required"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=urgent high medium low"`
	DueAt       *time.Time `json:"dueAt"`
}

// AssignTaskRequest hands a task to another agent.
type AssignTaskRequest struct {
	AgentID uuid.UUID `json:"agentId" validate:"required"`
}

// BlockTaskRequest moves a task to blocked. The reason is mandatory: a blocked
// task without a reason is not actionable.
type BlockTaskRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CompleteTaskRequest completes a manual task.
type CompleteTaskRequest struct {
	ConfirmationRef string `json:"confirmationRef" validate:"max=200"`
}

// ExecutionRequest drives the review-and-commit gate on API tasks.
type ExecutionRequest struct {
	Action string `json:"action" validate:"required,oneof=preview execute"`
}

// ExecutionResponse is the outcome of a preview or execute action. Payload is
// the stored booking request, returned verbatim on both actions.
type ExecutionResponse struct {
	Action          string          `json:"action"`
	Payload         json.RawMessage `json:"payload"`
	ConfirmationRef string          `json:"confirmationRef,omitempty"`
}

// AttachEvidenceRequest links an uploaded confirmation document to a task.
type AttachEvidenceRequest struct {
	FileKey string `json:"fileKey" validate:"required,max=500"`
}

// EvidenceUploadURLRequest describes the document the agent wants to upload,
// so it can be rejected before any bytes move.
type EvidenceUploadURLRequest struct {
	ContentType string `json:"contentType" validate:"required,max=100"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,gt=0"`
}

// EvidenceUploadURLResponse carries a presigned upload target for a
// confirmation document.
type EvidenceUploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
	ExpiresIn int    `json:"expiresInSeconds"`
}

// EvidenceDownloadURLResponse carries a presigned link to a task's attached
// confirmation document.
type EvidenceDownloadURLResponse struct {
	DownloadURL string `json:"downloadUrl"`
	ExpiresIn   int    `json:"expiresInSeconds"`
}
