// Package storage selects the CDN uploader used to publish screenshots.
// This abstraction keeps the pipeline independent of a specific CDN
// (ImageKit, Google Cloud Storage, a served directory or memory).
package storage

import (
	"context"
	"fmt"
	"strings"

	gcsclient "cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"google.golang.org/api/option"

	"github.com/JakeFAU/toolshots/internal/screenshot"
	"github.com/JakeFAU/toolshots/internal/storage/gcs"
	"github.com/JakeFAU/toolshots/internal/storage/imagekit"
	"github.com/JakeFAU/toolshots/internal/storage/local"
	"github.com/JakeFAU/toolshots/internal/storage/memory"
)

// Provider names accepted by New.
const (
	ProviderImageKit = "imagekit"
	ProviderGCS      = "gcs"
	ProviderLocal    = "local"
	ProviderMemory   = "memory"
)

// Options selects and configures an uploader.
type Options struct {
	Provider string
	ImageKit imagekit.Config
	GCS      gcs.Config
	Local    local.Config
	// FS backs the local provider. Defaults to the OS filesystem.
	FS afero.Fs
	// GCSClientOptions are passed to storage.NewClient.
	GCSClientOptions []option.ClientOption
}

// New builds the uploader named by opts.Provider. The returned close func is never nil.
func New(ctx context.Context, opts Options) (screenshot.Uploader, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderImageKit:
		u, err := imagekit.New(opts.ImageKit)
		if err != nil {
			return nil, noop, fmt.Errorf("imagekit uploader: %w", err)
		}
		return u, noop, nil
	case ProviderGCS:
		client, err := gcsclient.NewClient(ctx, opts.GCSClientOptions...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create GCS client: %w", err)
		}
		u, err := gcs.New(client, opts.GCS)
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("gcs uploader: %w", err)
		}
		return u, u.Close, nil
	case ProviderLocal:
		fsys := opts.FS
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		u, err := local.New(fsys, opts.Local)
		if err != nil {
			return nil, noop, fmt.Errorf("local uploader: %w", err)
		}
		return u, noop, nil
	case ProviderMemory:
		return memory.NewUploader(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown upload provider %q", opts.Provider)
	}
}
