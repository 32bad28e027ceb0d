package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"google.golang.org/api/option"
)

// GCSStorage implements the StorageService interface for Google Cloud Storage
type GCSStorage struct {
	client *storage.Client
	config config.GCSConfig
}

// NewGCSStorage creates a new GCS storage service
func NewGCSStorage(ctx context.Context, cfg config.GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSStorage{
		config: cfg,
		client: storageClient,
	}, nil
}

// Close releases the underlying client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}

// Upload uploads a file to GCS and returns the object name
func (g *GCSStorage) Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error) {
	return g.StreamUpload(ctx, bucket, objectName, bytes.NewReader(content), contentType)
}

// GetSignedURL gets a signed URL for a file in GCS
func (g *GCSStorage) GetSignedURL(ctx context.Context, bucket, objectName string, expires time.Duration) (string, error) {
	type credentials struct {
		PrivateKey  string `json:"private_key"`
		ClientEmail string `json:"client_email"`
	}

	if g.config.CredentialsFile == "" {
		// Let the client sign with the ambient service account.
		return g.client.Bucket(bucket).SignedURL(objectName, &storage.SignedURLOptions{
			Method:  "GET",
			Expires: time.Now().Add(expires),
		})
	}

	credsFile, err := os.ReadFile(g.config.CredentialsFile)
	if err != nil {
		return "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds credentials
	if err := json.Unmarshal(credsFile, &creds); err != nil {
		return "", fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	opts := &storage.SignedURLOptions{
		GoogleAccessID: creds.ClientEmail,
		PrivateKey:     []byte(creds.PrivateKey),
		Method:         "GET",
		Expires:        time.Now().Add(expires),
	}

	u, err := storage.SignedURL(bucket, objectName, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL: %w", err)
	}
	return u, nil
}

// StreamUpload uploads a file from a reader to GCS and returns the object name.
func (g *GCSStorage) StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error) {
	wc := g.client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "no-cache"

	if _, err := io.Copy(wc, reader); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	return objectName, nil
}
