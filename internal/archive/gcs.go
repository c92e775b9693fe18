package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

// GCSStore keeps objects in a Google Cloud Storage bucket under an optional prefix.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a storage client for bucket. prefix may be empty.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: creating storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// NewGCSStoreFromURI accepts gs://bucket or gs://bucket/prefix.
func NewGCSStoreFromURI(ctx context.Context, uri string) (*GCSStore, error) {
	bucket, prefix, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	return NewGCSStore(ctx, bucket, prefix)
}

func (s *GCSStore) object(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put uploads data. GCS makes the object visible only once the writer is closed.
func (s *GCSStore) Put(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.object(name)).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Put %s: writing: %w", s.URI(name), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Put %s: finalize upload: %w", s.URI(name), err)
	}
	return nil
}

// Get downloads an object.
func (s *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("Get %s: %w", s.URI(name), ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get %s: opening reader: %w", s.URI(name), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Get %s: reading: %w", s.URI(name), err)
	}
	return data, nil
}

// URI implements ObjectStore.
func (s *GCSStore) URI(name string) string {
	return "gs://" + s.bucket + "/" + s.object(name)
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// ParseGCSURI splits gs://bucket/path into bucket and path. The path may be empty.
func ParseGCSURI(uri string) (bucket, objectPath string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	bucket, objectPath, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	return bucket, strings.Trim(objectPath, "/"), nil
}

// BaseName extracts the object name from a GCS URI.
// e.g., "gs://bucket/ledger/snapshot.json" → "snapshot.json"
func BaseName(uri string) string {
	_, objectPath, err := ParseGCSURI(uri)
	if err != nil || objectPath == "" {
		return ""
	}
	return path.Base(objectPath)
}
