// Package app initializes and holds the long-lived services of a run, acting as a
// dependency injection container for the pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/toolshots/internal/capture"
	"github.com/JakeFAU/toolshots/internal/catalog"
	"github.com/JakeFAU/toolshots/internal/clock/system"
	"github.com/JakeFAU/toolshots/internal/config"
	collyfetcher "github.com/JakeFAU/toolshots/internal/fetcher/colly"
	"github.com/JakeFAU/toolshots/internal/fetcher/headless"
	"github.com/JakeFAU/toolshots/internal/freshness"
	"github.com/JakeFAU/toolshots/internal/id/uuid"
	"github.com/JakeFAU/toolshots/internal/manifest"
	"github.com/JakeFAU/toolshots/internal/metrics"
	"github.com/JakeFAU/toolshots/internal/pipeline"
	"github.com/JakeFAU/toolshots/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/toolshots/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/toolshots/internal/publisher/pubsub"
	"github.com/JakeFAU/toolshots/internal/screenshot"
	"github.com/JakeFAU/toolshots/internal/storage"
	"github.com/JakeFAU/toolshots/internal/storage/gcs"
	"github.com/JakeFAU/toolshots/internal/storage/imagekit"
	"github.com/JakeFAU/toolshots/internal/storage/local"
)

// DryRunTopic labels summaries logged by a dry run with no topic configured.
const DryRunTopic = "toolshots-runs"

// App holds every service a synchronization run needs.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	closers  []closer
}

type closer struct {
	name  string
	close func() error
}

// RenderCloser is a Renderer with a browser process to shut down.
type RenderCloser interface {
	screenshot.Renderer
	Close() error
}

type options struct {
	fs            afero.Fs
	renderer      RenderCloser
	gcsOptions    []option.ClientOption
	pubsubOptions []option.ClientOption
}

// Option customizes New, mainly for tests.
type Option func(*options)

// WithFS replaces the OS filesystem.
func WithFS(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithRenderer replaces the headless Chrome renderer.
func WithRenderer(r RenderCloser) Option {
	return func(o *options) { o.renderer = r }
}

// WithGCSClientOptions passes options to the Cloud Storage client.
func WithGCSClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gcsOptions = append(o.gcsOptions, opts...) }
}

// WithPubSubClientOptions passes options to the Pub/Sub client.
func WithPubSubClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.pubsubOptions = append(o.pubsubOptions, opts...) }
}

// New builds every service from cfg. It fails fast when a required service
// cannot be initialized and releases whatever was already started.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing services",
		zap.String("upload_provider", cfg.Upload.Provider),
		zap.Bool("headless", cfg.Capture.Headless),
		zap.Bool("notify", cfg.NotifyEnabled()),
	)

	clock := system.New()
	ids := uuid.New()
	limiter := ratelimit.New(ratelimit.Config{
		MaxConcurrent: cfg.Limiter.MaxConcurrent,
		MinTime:       cfg.Limiter.MinTime,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Catalog.UserAgent,
		Timeout:   cfg.Catalog.Timeout,
	})

	selectors, err := config.LoadSelectors(o.fs, cfg.Capture.SelectorsFile)
	if err != nil {
		return nil, err
	}
	renderer := a.renderer(o, cfg)
	a.track("renderer", renderer.Close)

	captureOpts := capture.Options{
		Width:                cfg.Capture.Width,
		Height:               cfg.Capture.Height,
		ScaleFactor:          cfg.Capture.ScaleFactor,
		ImageType:            cfg.Capture.ImageType,
		Quality:              cfg.Capture.Quality,
		Timeout:              cfg.Capture.Timeout,
		Overwrite:            cfg.Capture.Overwrite,
		DarkMode:             cfg.Capture.DarkMode,
		FullPage:             cfg.Capture.FullPage,
		RemoveSelectors:      selectors,
		WaitUntilNetworkIdle: cfg.Capture.WaitUntilNetworkIdle,
		SettleDelay:          cfg.Capture.SettleDelay,
		ThumbnailBase:        cfg.Capture.ThumbnailBase,
	}
	capturer := capture.New(limiter, renderer, fetcher, o.fs, captureOpts, logger)

	uploader, closeUploader, err := storage.New(ctx, storage.Options{
		Provider: cfg.Upload.Provider,
		ImageKit: imagekit.Config{
			PublicKey:      cfg.Upload.ImageKit.PublicKey,
			PrivateKey:     cfg.Upload.ImageKit.PrivateKey,
			Endpoint:       cfg.Upload.ImageKit.Endpoint,
			URLEndpoint:    cfg.Upload.ImageKit.URLEndpoint,
			UniqueFileName: cfg.Upload.ImageKit.UniqueFileName,
			Timeout:        cfg.Upload.ImageKit.Timeout,
		},
		GCS: gcs.Config{
			Bucket:        cfg.Upload.GCS.Bucket,
			PublicBaseURL: cfg.Upload.GCS.PublicBaseURL,
			CacheControl:  cfg.Upload.GCS.CacheControl,
		},
		Local: local.Config{
			BaseDir: cfg.Upload.Local.Dir,
			BaseURL: cfg.Upload.Local.BaseURL,
		},
		FS:               o.fs,
		GCSClientOptions: o.gcsOptions,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize uploader: %w", err)
	}
	a.track("uploader", closeUploader)

	publisher, topic, err := a.notifier(ctx, o, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	checker := freshness.New(o.fs, clock, cfg.Screenshots.MaxAge)
	logger.Info("capture configured",
		zap.Int("max_concurrent", limiter.MaxConcurrent()),
		zap.Duration("min_time", cfg.Limiter.MinTime),
		zap.Duration("max_age", checker.MaxAge()),
		zap.String("image_type", capturer.Options().ImageType),
		zap.Int("removed_selectors", len(capturer.Options().RemoveSelectors)),
	)

	a.pipeline = pipeline.New(pipeline.Deps{
		Catalog:   catalog.NewLoader(fetcher, cfg.Catalog.Sources, logger),
		Manifest:  manifest.NewStore(o.fs, cfg.Manifest.Path),
		Freshness: checker,
		Capturer:  capturer,
		Uploader:  uploader,
		Publisher: publisher,
		IDs:       ids,
		Clock:     clock,
		FS:        o.fs,
	}, pipeline.Config{
		ScreenshotsDir:  cfg.Screenshots.Dir,
		ImageType:       cfg.Capture.ImageType,
		ToolConcurrency: cfg.Pipeline.ToolConcurrency,
		UniqueNames:     cfg.Upload.UniqueNames,
		BackfillMissing: cfg.Upload.BackfillMissing,
		NotifyTopic:     topic,
	}, logger)

	logger.Info("services initialized")
	return a, nil
}

// notifier returns the run-summary publisher and its topic. Pub/Sub is used when
// configured; a dry run on the memory uploader logs the summary instead.
func (a *App) notifier(ctx context.Context, o options, cfg config.Config) (screenshot.Publisher, string, error) {
	if cfg.NotifyEnabled() {
		client, err := pubsub.NewClient(ctx, cfg.Notify.PubSub.ProjectID, o.pubsubOptions...)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize pubsub client: %w", err)
		}
		p := pubsubpublisher.New(client)
		a.track("publisher", p.Close)
		a.logger.Info("publishing run summaries", zap.String("topic", cfg.Notify.PubSub.Topic))
		return p, cfg.Notify.PubSub.Topic, nil
	}
	if strings.EqualFold(cfg.Upload.Provider, storage.ProviderMemory) {
		topic := cfg.Notify.PubSub.Topic
		if topic == "" {
			topic = DryRunTopic
		}
		p := memorypublisher.New(a.logger)
		a.track("publisher", p.Close)
		return p, topic, nil
	}
	return nil, "", nil
}

// renderer starts headless Chrome, or returns the no-op renderer when rendering
// is disabled or the browser cannot start. Thumbnails work either way.
func (a *App) renderer(o options, cfg config.Config) RenderCloser {
	if o.renderer != nil {
		return o.renderer
	}
	if !cfg.Capture.Headless {
		a.logger.Info("headless rendering disabled; only video thumbnails will be captured")
		return headless.NewNoop()
	}
	r, err := headless.NewChromedpRenderer(headless.Config{
		UserAgent: cfg.Capture.UserAgent,
		ExecPath:  cfg.Capture.ChromePath,
		NoSandbox: cfg.Capture.NoSandbox,
	}, a.logger)
	if err != nil {
		a.logger.Warn("headless renderer init failed; page captures will fail", zap.Error(err))
		return headless.NewNoop()
	}
	return r
}

func (a *App) track(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run executes one synchronization and pushes metrics when a Pushgateway is configured.
func (a *App) Run(ctx context.Context) (screenshot.Summary, error) {
	summary, err := a.pipeline.Run(ctx)
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if pushErr := metrics.Push(url, a.cfg.Metrics.Job); pushErr != nil {
			a.logger.Warn("metrics push failed", zap.String("url", url), zap.Error(pushErr))
		}
	}
	return summary, err
}

// Close shuts services down in reverse start order and flushes the logger.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	// Sync fails on stdout/stderr for some platforms; nothing to act on.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
