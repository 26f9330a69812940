package service

import (
	"context"
	"encoding/json"

	"tripdesk_backend/internal/tasks/repository"
	"tripdesk_backend/internal/tasks/transport"
	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// Execution gate actions.
const (
	ActionPreview = "preview"
	ActionExecute = "execute"
)

// RunExecution drives the review-and-commit gate on an API task. Preview
// returns the stored booking payload without side effects; execute sends the
// exact same bytes to the supplier. The two actions always operate on one
// stored payload, so what the agent reviewed is what gets booked.
func (s *Service) RunExecution(ctx context.Context, id uuid.UUID, action string) (*transport.ExecutionResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Mode != repository.ModeAPI {
		return nil, apperr.BadRequest("task has no automated booking")
	}
	switch task.Status {
	case repository.StatusPending, repository.StatusInProgress:
	case repository.StatusBlocked:
		return nil, apperr.Conflict("task is blocked; unblock it before executing")
	default:
		return nil, apperr.Conflict("task is already closed")
	}
	if !task.IsReady || len(task.RequestPreview) == 0 {
		return nil, apperr.Conflict("booking payload is not ready")
	}
	if task.Provider == nil {
		return nil, apperr.Internal("api task has no provider")
	}

	if action == ActionPreview {
		return &transport.ExecutionResponse{
			Action:  ActionPreview,
			Payload: json.RawMessage(task.RequestPreview),
		}, nil
	}

	if s.executor == nil {
		return nil, apperr.Internal("booking executor is not configured")
	}

	// Committing a booking is work in progress like any other completion:
	// pending tasks pass through in_progress first, so completed stays
	// reachable only from in_progress.
	fromStatus := task.Status
	if fromStatus == repository.StatusPending {
		if err := s.repo.UpdateStatus(ctx, id, repository.StatusPending, repository.StatusInProgress); err != nil {
			return nil, err
		}
		fromStatus = repository.StatusInProgress
	}
	if err := validateTransition(fromStatus, repository.StatusCompleted); err != nil {
		return nil, err
	}

	confirmationRef, err := s.executor.ExecuteBooking(ctx, *task.Provider, task.RequestPreview)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "supplier booking failed", err)
	}

	if err := s.repo.Complete(ctx, id, fromStatus, &confirmationRef); err != nil {
		// The booking went through; surface the ref even if the status write
		// lost a race, so the agent can record it.
		s.log.Error("booking executed but task completion failed",
			"task_id", id, "confirmation_ref", confirmationRef, "error", err)
	}

	return &transport.ExecutionResponse{
		Action:          ActionExecute,
		Payload:         json.RawMessage(task.RequestPreview),
		ConfirmationRef: confirmationRef,
	}, nil
}
