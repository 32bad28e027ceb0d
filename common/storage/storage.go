package storage

import (
	"context"
	"io"
	"time"
)

// StorageService defines the interface for storage operations
type StorageService interface {
	// Upload uploads a file to storage and returns the object name
	Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error)

	// GetSignedURL gets a signed URL for a file
	GetSignedURL(ctx context.Context, bucket, objectName string, expires time.Duration) (string, error)

	// StreamUpload uploads a file from a reader
	StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error)
}
