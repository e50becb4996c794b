// Package gcs uploads screenshots to a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

const defaultPublicBase = "https://storage.googleapis.com"

// Config captures the parameters required to publish objects.
type Config struct {
	Bucket string
	// PublicBaseURL replaces https://storage.googleapis.com/<bucket> in returned URLs,
	// e.g. when the bucket sits behind a CDN domain.
	PublicBaseURL string
	CacheControl  string
}

// Uploader writes screenshots to a configured GCS bucket.
type Uploader struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed uploader.
func New(client *storage.Client, cfg Config) (*Uploader, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Uploader{
		client: client,
		cfg:    cfg,
	}, nil
}

// Upload stores data under name and returns the object's public URL.
func (u *Uploader) Upload(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	writer := u.client.Bucket(u.cfg.Bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if u.cfg.CacheControl != "" {
		writer.CacheControl = u.cfg.CacheControl
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return u.publicURL(name), nil
}

// Close releases the underlying client.
func (u *Uploader) Close() error {
	if err := u.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

func (u *Uploader) publicURL(name string) string {
	base := strings.TrimSuffix(u.cfg.PublicBaseURL, "/")
	if base == "" {
		base = defaultPublicBase + "/" + u.cfg.Bucket
	}
	return base + "/" + strings.TrimPrefix(name, "/")
}
