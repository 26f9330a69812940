// Package service implements the task state machine and the execution gate
// for prepared API bookings.
package service

import (
	"context"
	"fmt"
	"time"

	"tripdesk_backend/internal/events"
	"tripdesk_backend/internal/tasks/repository"
	"tripdesk_backend/internal/tasks/transport"
	"tripdesk_backend/platform/apperr"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// allowedTransitions is the task state machine. Completed and cancelled are
// terminal; a blocked task first returns to pending before any other move.
var allowedTransitions = map[string][]string{
	repository.StatusPending:    {repository.StatusInProgress, repository.StatusBlocked, repository.StatusCancelled},
	repository.StatusInProgress: {repository.StatusCompleted, repository.StatusBlocked, repository.StatusCancelled},
	repository.StatusBlocked:    {repository.StatusPending, repository.StatusCancelled},
}

// Store is the persistence the task service depends on. The pgx-backed
// repository satisfies it; tests swap in an in-memory fake.
type Store interface {
	Create(ctx context.Context, t *repository.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Task, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID, status string) ([]repository.Task, error)
	ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]repository.Task, error)
	CountByAgent(ctx context.Context, agentID uuid.UUID, now time.Time) (*repository.StatusCounts, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) error
	SetBlocked(ctx context.Context, id uuid.UUID, fromStatus, reason string) error
	Complete(ctx context.Context, id uuid.UUID, fromStatus string, confirmationRef *string) error
	Reassign(ctx context.Context, id, agentID uuid.UUID) error
	SetEvidenceFileKey(ctx context.Context, id uuid.UUID, fileKey string) error
}

// BookingExecutor executes a prepared booking payload against a supplier.
type BookingExecutor interface {
	ExecuteBooking(ctx context.Context, provider string, payload []byte) (string, error)
}

// EvidenceStorage manages confirmation documents in object storage.
type EvidenceStorage interface {
	PresignedUploadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error)
	PresignedDownloadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, fileKey string) error
	ValidateContentType(contentType string) error
	ValidateFileSize(sizeBytes int64) error
}

const (
	evidenceUploadExpiry   = 15 * time.Minute
	evidenceDownloadExpiry = time.Hour
)

// CreateTaskInput describes a task to create. Fulfillment dispatch and the
// HTTP handler both funnel through this.
type CreateTaskInput struct {
	QuoteID        uuid.UUID
	AgentID        uuid.UUID
	ItemID         *uuid.UUID
	PaymentID      *uuid.UUID
	Type           string
	Title          string
	Description    string
	Priority       string
	Mode           string
	Provider       string
	DueAt          *time.Time
	RequestPreview []byte
}

// Service implements task operations.
type Service struct {
	repo     Store
	executor BookingExecutor
	storage  EvidenceStorage
	bus      events.Bus
	log      *logger.Logger
}

// New creates the tasks service.
func New(repo Store, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// SetBookingExecutor injects the supplier booking executor (set after
// construction to break the tasks → fulfillment wiring cycle).
func (s *Service) SetBookingExecutor(executor BookingExecutor) {
	s.executor = executor
}

// SetEvidenceStorage injects the confirmation document storage.
func (s *Service) SetEvidenceStorage(storage EvidenceStorage) {
	s.storage = storage
}

// SetEventBus injects the domain event bus.
func (s *Service) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// Create persists a new task in pending state. API-mode tasks become
// execution-ready only when they carry a prepared payload and a provider.
func (s *Service) Create(ctx context.Context, input CreateTaskInput) (*transport.TaskResponse, error) {
	if input.Title == "" {
		return nil, apperr.Validation("task title is required")
	}
	priority := input.Priority
	if priority == "" {
		priority = repository.PriorityMedium
	}
	mode := input.Mode
	if mode == "" {
		mode = repository.ModeManual
	}
	if mode == repository.ModeAPI && (len(input.RequestPreview) == 0 || input.Provider == "") {
		return nil, apperr.Validation("api tasks require a provider and a prepared payload")
	}
	taskType := input.Type
	if taskType == "" {
		taskType = repository.TypeGeneral
	}

	now := time.Now()
	task := &repository.Task{
		ID:             uuid.New(),
		QuoteID:        input.QuoteID,
		ItemID:         input.ItemID,
		PaymentID:      input.PaymentID,
		AgentID:        input.AgentID,
		Type:           taskType,
		Title:          input.Title,
		Description:    input.Description,
		Status:         repository.StatusPending,
		Priority:       priority,
		Mode:           mode,
		IsReady:        mode == repository.ModeAPI,
		RequestPreview: input.RequestPreview,
		DueAt:          input.DueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.Provider != "" {
		task.Provider = &input.Provider
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.TaskCreated{
			BaseEvent: events.NewBaseEvent(),
			TaskID:    task.ID,
			QuoteID:   task.QuoteID,
			AgentID:   task.AgentID,
			Title:     task.Title,
			Priority:  task.Priority,
			Mode:      task.Mode,
			DueAt:     task.DueAt,
		})
	}

	return toResponse(task), nil
}

// Get fetches one task.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transport.TaskResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(task), nil
}

// ListByAgent lists an agent's tasks in working order.
func (s *Service) ListByAgent(ctx context.Context, agentID uuid.UUID, status string) ([]transport.TaskResponse, error) {
	tasks, err := s.repo.ListByAgent(ctx, agentID, status)
	if err != nil {
		return nil, err
	}
	return toResponses(tasks), nil
}

// ListByQuote lists the fulfillment work attached to a quote.
func (s *Service) ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]transport.TaskResponse, error) {
	tasks, err := s.repo.ListByQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	return toResponses(tasks), nil
}

// Summary aggregates the agent's open work for the dashboard.
func (s *Service) Summary(ctx context.Context, agentID uuid.UUID) (*repository.StatusCounts, error) {
	return s.repo.CountByAgent(ctx, agentID, time.Now())
}

// Start moves a pending task to in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*transport.TaskResponse, error) {
	return s.transition(ctx, id, repository.StatusInProgress)
}

// Complete finishes an in-progress task. Manual booking tasks (those tied to
// a quote item) must carry the supplier's confirmation reference.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, confirmationRef string) (*transport.TaskResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(task.Status, repository.StatusCompleted); err != nil {
		return nil, err
	}
	if task.Mode == repository.ModeAPI {
		return nil, apperr.BadRequest("api tasks complete through the execution endpoint")
	}
	if task.ItemID != nil && confirmationRef == "" {
		return nil, apperr.Validation("booking tasks require a confirmation reference")
	}

	var ref *string
	if confirmationRef != "" {
		ref = &confirmationRef
	}
	if err := s.repo.Complete(ctx, id, task.Status, ref); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Block parks a task with a mandatory reason.
func (s *Service) Block(ctx context.Context, id uuid.UUID, reason string) (*transport.TaskResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(task.Status, repository.StatusBlocked); err != nil {
		return nil, err
	}
	if err := s.repo.SetBlocked(ctx, id, task.Status, reason); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Unblock returns a blocked task to pending. The agent re-triages from there.
func (s *Service) Unblock(ctx context.Context, id uuid.UUID) (*transport.TaskResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != repository.StatusBlocked {
		return nil, apperr.Conflict("task is not blocked")
	}
	if err := s.repo.UpdateStatus(ctx, id, repository.StatusBlocked, repository.StatusPending); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Reassign hands an open task to another agent. Reminders already scheduled
// keep firing for the original agent id; the sweep catches the new owner.
func (s *Service) Reassign(ctx context.Context, id, agentID uuid.UUID) (*transport.TaskResponse, error) {
	if err := s.repo.Reassign(ctx, id, agentID); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Cancel abandons a non-terminal task.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*transport.TaskResponse, error) {
	return s.transition(ctx, id, repository.StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, toStatus string) (*transport.TaskResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(task.Status, toStatus); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, task.Status, toStatus); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// validateTransition enforces the task state machine.
func validateTransition(from, to string) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.Conflict(fmt.Sprintf("cannot move task from %s to %s", from, to))
}

// GenerateEvidenceUploadURL issues a presigned upload target for the task's
// confirmation document. Content type and size are validated up front so the
// agent learns about a rejected file before uploading it.
func (s *Service) GenerateEvidenceUploadURL(ctx context.Context, id uuid.UUID, contentType string, sizeBytes int64) (*transport.EvidenceUploadURLResponse, error) {
	if s.storage == nil {
		return nil, apperr.Internal("document storage is not configured")
	}
	if err := s.storage.ValidateContentType(contentType); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := s.storage.ValidateFileSize(sizeBytes); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fileKey := fmt.Sprintf("confirmations/%s/%s", task.QuoteID, task.ID)
	url, err := s.storage.PresignedUploadURL(ctx, fileKey, evidenceUploadExpiry)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to presign upload", err)
	}

	return &transport.EvidenceUploadURLResponse{
		UploadURL: url,
		FileKey:   fileKey,
		ExpiresIn: int(evidenceUploadExpiry.Seconds()),
	}, nil
}

// GenerateEvidenceDownloadURL issues a presigned link to the task's attached
// confirmation document.
func (s *Service) GenerateEvidenceDownloadURL(ctx context.Context, id uuid.UUID) (*transport.EvidenceDownloadURLResponse, error) {
	if s.storage == nil {
		return nil, apperr.Internal("document storage is not configured")
	}
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.EvidenceFileKey == nil {
		return nil, apperr.NotFound("task has no confirmation document")
	}

	url, err := s.storage.PresignedDownloadURL(ctx, *task.EvidenceFileKey, evidenceDownloadExpiry)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to presign download", err)
	}

	return &transport.EvidenceDownloadURLResponse{
		DownloadURL: url,
		ExpiresIn:   int(evidenceDownloadExpiry.Seconds()),
	}, nil
}

// AttachEvidence links an uploaded confirmation document to the task. A
// replaced document is removed from storage best-effort; the row is the
// source of truth.
func (s *Service) AttachEvidence(ctx context.Context, id uuid.UUID, fileKey string) (*transport.TaskResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetEvidenceFileKey(ctx, id, fileKey); err != nil {
		return nil, err
	}

	if s.storage != nil && task.EvidenceFileKey != nil && *task.EvidenceFileKey != fileKey {
		if err := s.storage.DeleteObject(ctx, *task.EvidenceFileKey); err != nil {
			s.log.Warn("failed to remove replaced evidence document",
				"task_id", id, "file_key", *task.EvidenceFileKey, "error", err)
		}
	}

	return s.Get(ctx, id)
}

func toResponse(t *repository.Task) *transport.TaskResponse {
	return &transport.TaskResponse{
		ID:              t.ID,
		QuoteID:         t.QuoteID,
		ItemID:          t.ItemID,
		Type:            t.Type,
		Title:           t.Title,
		Description:     t.Description,
		Status:          t.Status,
		Priority:        t.Priority,
		Mode:            t.Mode,
		Provider:        t.Provider,
		IsReady:         t.IsReady,
		HasPayload:      len(t.RequestPreview) > 0,
		BlockedReason:   t.BlockedReason,
		ConfirmationRef: t.ConfirmationRef,
		EvidenceFileKey: t.EvidenceFileKey,
		DueAt:           t.DueAt,
		CompletedAt:     t.CompletedAt,
		CreatedAt:       t.CreatedAt,
	}
}

func toResponses(tasks []repository.Task) []transport.TaskResponse {
	out := make([]transport.TaskResponse, len(tasks))
	for i := range tasks {
		out[i] = *toResponse(&tasks[i])
	}
	return out
}
