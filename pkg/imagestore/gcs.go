// Package imagestore persists profile images in object storage. The cache
// layer never sees image bytes; user records only carry the object path this
// package returns. Transcoding and validation happen upstream.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// Store is the contract the mutation coordinator uses for profile images.
type Store interface {
	// Save writes the image bytes for a user and returns the object path.
	Save(ctx context.Context, userID string, data []byte) (string, error)
	// Delete removes a user's image. A missing object is not an error.
	Delete(ctx context.Context, userID string) error
}

// --- GCS Client Abstraction Interfaces ---
// These abstract the concrete *storage.Client so the store can be unit
// tested without a real GCS connection.

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) io.WriteCloser
	Delete(ctx context.Context) error
}

// --- Adapters to wrap the concrete Google Cloud Storage client ---

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter makes the concrete *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context) io.WriteCloser {
	return a.handle.NewWriter(ctx)
}

func (a *gcsObjectHandleAdapter) Delete(ctx context.Context) error {
	return a.handle.Delete(ctx)
}

// GCSImageStoreConfig holds configuration for the GCS-backed image store.
type GCSImageStoreConfig struct {
	BucketName string
	// ObjectPrefix namespaces the image objects inside the bucket.
	// Defaults to "profiles".
	ObjectPrefix string
}

// GCSImageStore implements Store on Google Cloud Storage.
type GCSImageStore struct {
	client GCSClient
	cfg    GCSImageStoreConfig
	logger zerolog.Logger
}

// NewGCSImageStore creates a new GCS-backed image store.
func NewGCSImageStore(cfg GCSImageStoreConfig, client GCSClient, logger zerolog.Logger) (*GCSImageStore, error) {
	if client == nil {
		return nil, errors.New("gcs client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name cannot be empty")
	}
	if cfg.ObjectPrefix == "" {
		cfg.ObjectPrefix = "profiles"
	}
	return &GCSImageStore{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "GCSImageStore").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// objectPath builds the bucket-relative path for a user's image.
func (s *GCSImageStore) objectPath(userID string) string {
	return path.Join(s.cfg.ObjectPrefix, userID)
}

// Save writes the image bytes and returns the object path stored on the
// user record.
func (s *GCSImageStore) Save(ctx context.Context, userID string, data []byte) (string, error) {
	objectPath := s.objectPath(userID)
	writer := s.client.Bucket(s.cfg.BucketName).Object(objectPath).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("gcs write for %s: %w", objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("gcs close for %s: %w", objectPath, err)
	}
	s.logger.Debug().Str("object", objectPath).Int("bytes", len(data)).Msg("Profile image stored.")
	return objectPath, nil
}

// Delete removes a user's image. A missing object is ignored so the cascade
// on user deletion stays idempotent.
func (s *GCSImageStore) Delete(ctx context.Context, userID string) error {
	objectPath := s.objectPath(userID)
	err := s.client.Bucket(s.cfg.BucketName).Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete for %s: %w", objectPath, err)
	}
	return nil
}
