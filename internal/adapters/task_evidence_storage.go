package adapters

import (
	"context"
	"time"

	"tripdesk_backend/internal/adapters/storage"
	taskssvc "tripdesk_backend/internal/tasks/service"
)

// TaskEvidenceStorage binds the tasks module to the booking confirmations
// bucket.
type TaskEvidenceStorage struct {
	storage storage.StorageService
	bucket  string
}

func NewTaskEvidenceStorage(svc storage.StorageService, bucket string) *TaskEvidenceStorage {
	return &TaskEvidenceStorage{storage: svc, bucket: bucket}
}

func (a *TaskEvidenceStorage) PresignedUploadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	return a.storage.PresignedPutURL(ctx, a.bucket, fileKey, expiry)
}

func (a *TaskEvidenceStorage) PresignedDownloadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	return a.storage.PresignedGetURL(ctx, a.bucket, fileKey, expiry)
}

func (a *TaskEvidenceStorage) DeleteObject(ctx context.Context, fileKey string) error {
	return a.storage.DeleteObject(ctx, a.bucket, fileKey)
}

func (a *TaskEvidenceStorage) ValidateContentType(contentType string) error {
	return a.storage.ValidateContentType(contentType)
}

func (a *TaskEvidenceStorage) ValidateFileSize(sizeBytes int64) error {
	return a.storage.ValidateFileSize(sizeBytes)
}

// Compile-time check.
var _ taskssvc.EvidenceStorage = (*TaskEvidenceStorage)(nil)
