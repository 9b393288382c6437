// Package gcs serves application icons from Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/progress-overlay/internal/store"
)

// Config captures the parameters required to read icons from GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to "<package_id>.png" when forming object names.
	Prefix string
}

// IconStore reads and writes icons in a configured GCS bucket.
type IconStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed icon store.
func New(client *storage.Client, cfg Config) (*IconStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &IconStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.TrimPrefix(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object key used for packageID.
func (s *IconStore) ObjectName(packageID string) string {
	return s.prefix + packageID + ".png"
}

// Open streams the stored icon.
func (s *IconStore) Open(ctx context.Context, packageID string) (io.ReadCloser, error) {
	if strings.TrimSpace(packageID) == "" {
		return nil, fmt.Errorf("package_id is required")
	}
	r, err := s.client.Bucket(s.bucket).Object(s.ObjectName(packageID)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("open icon object: %w", err)
	}
	return r, nil
}

// Put uploads an encoded icon.
func (s *IconStore) Put(ctx context.Context, packageID string, r io.Reader) error {
	if strings.TrimSpace(packageID) == "" {
		return fmt.Errorf("package_id is required")
	}
	writer := s.client.Bucket(s.bucket).Object(s.ObjectName(packageID)).NewWriter(ctx)
	writer.ContentType = "image/png"
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy icon: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy icon: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
