package service

import (
	"context"
	"testing"

	"tripdesk_backend/internal/tasks/repository"
	"tripdesk_backend/platform/apperr"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

func TestValidateTransition_AllowedMoves(t *testing.T) {
	allowed := [][2]string{
		{repository.StatusPending, repository.StatusInProgress},
		{repository.StatusPending, repository.StatusBlocked},
		{repository.StatusPending, repository.StatusCancelled},
		{repository.StatusInProgress, repository.StatusCompleted},
		{repository.StatusInProgress, repository.StatusBlocked},
		{repository.StatusInProgress, repository.StatusCancelled},
		{repository.StatusBlocked, repository.StatusPending},
		{repository.StatusBlocked, repository.StatusCancelled},
	}
	for _, move := range allowed {
		if err := validateTransition(move[0], move[1]); err != nil {
			t.Fatalf("expected %s -> %s to be allowed: %v", move[0], move[1], err)
		}
	}
}

func TestValidateTransition_RejectedMoves(t *testing.T) {
	rejected := [][2]string{
		{repository.StatusPending, repository.StatusCompleted},
		{repository.StatusBlocked, repository.StatusCompleted},
		{repository.StatusBlocked, repository.StatusInProgress},
		{repository.StatusCompleted, repository.StatusInProgress},
		{repository.StatusCompleted, repository.StatusPending},
		{repository.StatusCancelled, repository.StatusPending},
		{repository.StatusCancelled, repository.StatusCompleted},
	}
	for _, move := range rejected {
		err := validateTransition(move[0], move[1])
		if err == nil {
			t.Fatalf("expected %s -> %s to be rejected", move[0], move[1])
		}
		if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("expected conflict for %s -> %s, got %v", move[0], move[1], err)
		}
	}
}

func TestCreate_RejectsMissingTitle(t *testing.T) {
	svc := New(nil, logger.New("development"))

	_, err := svc.Create(context.Background(), CreateTaskInput{
		QuoteID: uuid.New(),
		AgentID: uuid.New(),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreate_RejectsAPITaskWithoutPayload(t *testing.T) {
	svc := New(nil, logger.New("development"))

	_, err := svc.Create(context.Background(), CreateTaskInput{
		QuoteID: uuid.New(),
		AgentID: uuid.New(),
		Title:   "Confirm flight booking",
		Mode:    repository.ModeAPI,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
