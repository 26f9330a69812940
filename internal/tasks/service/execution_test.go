package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tripdesk_backend/internal/tasks/repository"
	"tripdesk_backend/platform/apperr"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

// fakeTaskStore is an in-memory Store recording every status move.
type fakeTaskStore struct {
	tasks       map[uuid.UUID]*repository.Task
	transitions [][2]string
	evidenceSet []string
}

func newFakeTaskStore(tasks ...*repository.Task) *fakeTaskStore {
	f := &fakeTaskStore{tasks: make(map[uuid.UUID]*repository.Task)}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTaskStore) Create(ctx context.Context, t *repository.Task) error {
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*repository.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTaskStore) ListByAgent(ctx context.Context, agentID uuid.UUID, status string) ([]repository.Task, error) {
	return nil, nil
}

func (f *fakeTaskStore) ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]repository.Task, error) {
	return nil, nil
}

func (f *fakeTaskStore) CountByAgent(ctx context.Context, agentID uuid.UUID, now time.Time) (*repository.StatusCounts, error) {
	return &repository.StatusCounts{}, nil
}

func (f *fakeTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) error {
	t, ok := f.tasks[id]
	if !ok || t.Status != fromStatus {
		return apperr.Conflict("task status changed concurrently")
	}
	t.Status = toStatus
	f.transitions = append(f.transitions, [2]string{fromStatus, toStatus})
	return nil
}

func (f *fakeTaskStore) SetBlocked(ctx context.Context, id uuid.UUID, fromStatus, reason string) error {
	t, ok := f.tasks[id]
	if !ok || t.Status != fromStatus {
		return apperr.Conflict("task status changed concurrently")
	}
	t.Status = repository.StatusBlocked
	t.BlockedReason = &reason
	f.transitions = append(f.transitions, [2]string{fromStatus, repository.StatusBlocked})
	return nil
}

func (f *fakeTaskStore) Complete(ctx context.Context, id uuid.UUID, fromStatus string, confirmationRef *string) error {
	t, ok := f.tasks[id]
	if !ok || t.Status != fromStatus {
		return apperr.Conflict("task status changed concurrently")
	}
	now := time.Now()
	t.Status = repository.StatusCompleted
	t.ConfirmationRef = confirmationRef
	t.CompletedAt = &now
	f.transitions = append(f.transitions, [2]string{fromStatus, repository.StatusCompleted})
	return nil
}

func (f *fakeTaskStore) Reassign(ctx context.Context, id, agentID uuid.UUID) error {
	t, ok := f.tasks[id]
	if !ok {
		return apperr.NotFound("task not found")
	}
	t.AgentID = agentID
	return nil
}

func (f *fakeTaskStore) SetEvidenceFileKey(ctx context.Context, id uuid.UUID, fileKey string) error {
	t, ok := f.tasks[id]
	if !ok {
		return apperr.NotFound("task not found")
	}
	key := fileKey
	t.EvidenceFileKey = &key
	f.evidenceSet = append(f.evidenceSet, fileKey)
	return nil
}

type fakeExecutor struct {
	calls    int
	provider string
	payload  []byte
	err      error
}

func (f *fakeExecutor) ExecuteBooking(ctx context.Context, provider string, payload []byte) (string, error) {
	f.calls++
	f.provider = provider
	f.payload = payload
	if f.err != nil {
		return "", f.err
	}
	return "CONF-42", nil
}

type fakeEvidenceStorage struct {
	rejectContentType bool
	rejectSize        bool
	presigned         []string
	deleted           []string
}

func (f *fakeEvidenceStorage) PresignedUploadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	f.presigned = append(f.presigned, fileKey)
	return "https://storage.example/" + fileKey, nil
}

func (f *fakeEvidenceStorage) PresignedDownloadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	f.presigned = append(f.presigned, fileKey)
	return "https://storage.example/" + fileKey, nil
}

func (f *fakeEvidenceStorage) DeleteObject(ctx context.Context, fileKey string) error {
	f.deleted = append(f.deleted, fileKey)
	return nil
}

func (f *fakeEvidenceStorage) ValidateContentType(contentType string) error {
	if f.rejectContentType {
		return errors.New("content type not allowed")
	}
	return nil
}

func (f *fakeEvidenceStorage) ValidateFileSize(sizeBytes int64) error {
	if f.rejectSize {
		return errors.New("file too large")
	}
	return nil
}

func apiTask(status string) *repository.Task {
	provider := "flighthub"
	now := time.Now()
	return &repository.Task{
		ID:             uuid.New(),
		QuoteID:        uuid.New(),
		AgentID:        uuid.New(),
		Type:           repository.TypeBookFlight,
		Title:          "Confirm flight booking",
		Status:         status,
		Priority:       repository.PriorityMedium,
		Mode:           repository.ModeAPI,
		Provider:       &provider,
		IsReady:        true,
		RequestPreview: []byte(`{"provider":"flighthub","itemType":"flight"}`),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func newExecutionService(store *fakeTaskStore, executor *fakeExecutor) *Service {
	svc := New(store, logger.New("development"))
	if executor != nil {
		svc.SetBookingExecutor(executor)
	}
	return svc
}

// ── Execution gate ────────────────────────────────────────────────────────────

func TestRunExecution_PreviewHasNoSideEffects(t *testing.T) {
	task := apiTask(repository.StatusPending)
	store := newFakeTaskStore(task)
	executor := &fakeExecutor{}
	svc := newExecutionService(store, executor)

	resp, err := svc.RunExecution(context.Background(), task.ID, ActionPreview)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(resp.Payload, task.RequestPreview) {
		t.Fatal("preview must return the stored payload bytes")
	}
	if executor.calls != 0 {
		t.Fatal("preview must not book anything")
	}
	if store.tasks[task.ID].Status != repository.StatusPending {
		t.Fatalf("preview must not move the task, got %s", store.tasks[task.ID].Status)
	}
}

func TestRunExecution_ExecuteRoutesPendingThroughInProgress(t *testing.T) {
	task := apiTask(repository.StatusPending)
	store := newFakeTaskStore(task)
	executor := &fakeExecutor{}
	svc := newExecutionService(store, executor)

	resp, err := svc.RunExecution(context.Background(), task.ID, ActionExecute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ConfirmationRef != "CONF-42" {
		t.Fatalf("expected the supplier confirmation ref, got %q", resp.ConfirmationRef)
	}

	// Completed is only reachable from in_progress, so a pending task takes
	// two recorded moves.
	want := [][2]string{
		{repository.StatusPending, repository.StatusInProgress},
		{repository.StatusInProgress, repository.StatusCompleted},
	}
	if len(store.transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, store.transitions)
	}
	for i := range want {
		if store.transitions[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, store.transitions)
		}
	}

	final := store.tasks[task.ID]
	if final.Status != repository.StatusCompleted || final.ConfirmationRef == nil {
		t.Fatalf("expected a completed task with the ref recorded, got %+v", final)
	}
	if !bytes.Equal(executor.payload, task.RequestPreview) {
		t.Fatal("executor must receive the exact reviewed bytes")
	}
}

func TestRunExecution_ExecuteFromInProgress(t *testing.T) {
	task := apiTask(repository.StatusInProgress)
	store := newFakeTaskStore(task)
	svc := newExecutionService(store, &fakeExecutor{})

	if _, err := svc.RunExecution(context.Background(), task.ID, ActionExecute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.transitions) != 1 || store.transitions[0] != [2]string{repository.StatusInProgress, repository.StatusCompleted} {
		t.Fatalf("expected a single completion move, got %v", store.transitions)
	}
}

func TestRunExecution_BookingFailureLeavesTaskOpen(t *testing.T) {
	task := apiTask(repository.StatusPending)
	store := newFakeTaskStore(task)
	executor := &fakeExecutor{err: errors.New("supplier rejected")}
	svc := newExecutionService(store, executor)

	_, err := svc.RunExecution(context.Background(), task.ID, ActionExecute)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request on supplier failure, got %v", err)
	}
	// The task stays workable for a retry, parked at in_progress.
	if store.tasks[task.ID].Status != repository.StatusInProgress {
		t.Fatalf("expected in_progress after a failed booking, got %s", store.tasks[task.ID].Status)
	}
}

func TestRunExecution_RefusesBlockedAndClosedTasks(t *testing.T) {
	for _, status := range []string{repository.StatusBlocked, repository.StatusCompleted, repository.StatusCancelled} {
		task := apiTask(status)
		store := newFakeTaskStore(task)
		svc := newExecutionService(store, &fakeExecutor{})

		_, err := svc.RunExecution(context.Background(), task.ID, ActionExecute)
		if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("expected conflict for %s task, got %v", status, err)
		}
	}
}

func TestRunExecution_RefusesManualTask(t *testing.T) {
	task := apiTask(repository.StatusPending)
	task.Mode = repository.ModeManual
	store := newFakeTaskStore(task)
	svc := newExecutionService(store, &fakeExecutor{})

	_, err := svc.RunExecution(context.Background(), task.ID, ActionExecute)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for a manual task, got %v", err)
	}
}

// ── Evidence documents ────────────────────────────────────────────────────────

func TestGenerateEvidenceUploadURL_ValidatesBeforePresigning(t *testing.T) {
	task := apiTask(repository.StatusInProgress)
	store := newFakeTaskStore(task)
	storage := &fakeEvidenceStorage{rejectContentType: true}
	svc := newExecutionService(store, nil)
	svc.SetEvidenceStorage(storage)

	_, err := svc.GenerateEvidenceUploadURL(context.Background(), task.ID, "application/zip", 1024)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for rejected content type, got %v", err)
	}
	if len(storage.presigned) != 0 {
		t.Fatal("a rejected file must not be presigned")
	}

	storage.rejectContentType = false
	storage.rejectSize = true
	_, err = svc.GenerateEvidenceUploadURL(context.Background(), task.ID, "application/pdf", 1<<30)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for oversized file, got %v", err)
	}

	storage.rejectSize = false
	resp, err := svc.GenerateEvidenceUploadURL(context.Background(), task.ID, "application/pdf", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantKey := fmt.Sprintf("confirmations/%s/%s", task.QuoteID, task.ID)
	if resp.FileKey != wantKey {
		t.Fatalf("expected deterministic file key %s, got %s", wantKey, resp.FileKey)
	}
}

func TestGenerateEvidenceDownloadURL_RequiresAttachedDocument(t *testing.T) {
	task := apiTask(repository.StatusCompleted)
	store := newFakeTaskStore(task)
	svc := newExecutionService(store, nil)
	svc.SetEvidenceStorage(&fakeEvidenceStorage{})

	_, err := svc.GenerateEvidenceDownloadURL(context.Background(), task.ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found without a document, got %v", err)
	}

	key := "confirmations/a/b"
	store.tasks[task.ID].EvidenceFileKey = &key
	resp, err := svc.GenerateEvidenceDownloadURL(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.DownloadURL == "" || resp.ExpiresIn != int(evidenceDownloadExpiry.Seconds()) {
		t.Fatalf("unexpected download response %+v", resp)
	}
}

func TestAttachEvidence_RemovesReplacedDocument(t *testing.T) {
	task := apiTask(repository.StatusInProgress)
	oldKey := "confirmations/old/key"
	task.EvidenceFileKey = &oldKey
	store := newFakeTaskStore(task)
	storage := &fakeEvidenceStorage{}
	svc := newExecutionService(store, nil)
	svc.SetEvidenceStorage(storage)

	newKey := fmt.Sprintf("confirmations/%s/%s", task.QuoteID, task.ID)
	resp, err := svc.AttachEvidence(context.Background(), task.ID, newKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.EvidenceFileKey == nil || *resp.EvidenceFileKey != newKey {
		t.Fatalf("expected the new key on the task, got %+v", resp.EvidenceFileKey)
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != oldKey {
		t.Fatalf("expected the replaced document removed, got %v", storage.deleted)
	}
}
