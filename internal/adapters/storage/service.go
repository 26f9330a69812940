// Package storage provides S3-compatible object storage for booking
// confirmation documents. The interface is domain-agnostic; the tasks module
// consumes it through a narrow port.
package storage

import (
	"context"
	"time"
)

// StorageService defines the object storage operations the application uses.
type StorageService interface {
	// PresignedPutURL creates a presigned upload URL for an exact file key.
	PresignedPutURL(ctx context.Context, bucket, fileKey string, expiry time.Duration) (string, error)

	// PresignedGetURL creates a presigned download URL.
	PresignedGetURL(ctx context.Context, bucket, fileKey string, expiry time.Duration) (string, error)

	// DeleteObject removes an object from storage.
	DeleteObject(ctx context.Context, bucket, fileKey string) error

	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// ValidateContentType checks if the content type is allowed.
	ValidateContentType(contentType string) error

	// ValidateFileSize checks if the file size is within limits.
	ValidateFileSize(sizeBytes int64) error
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	IsMinIOEnabled() bool
}
