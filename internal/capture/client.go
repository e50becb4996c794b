// Package capture turns a URL into an image file on disk, picking a strategy per URL kind.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshots/internal/classify"
	"github.com/JakeFAU/toolshots/internal/metrics"
	"github.com/JakeFAU/toolshots/internal/policy/ratelimit"
	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// DefaultThumbnailBase is the YouTube thumbnail host used when none is configured.
const DefaultThumbnailBase = "http://img.youtube.com/vi"

const readmeAnchor = "#readme"

// ErrExists is returned when the target file exists and overwriting is disabled.
var ErrExists = errors.New("screenshot already exists")

// Options configures every capture made by a Client.
type Options struct {
	Width                int
	Height               int
	ScaleFactor          float64
	ImageType            string
	Quality              float64
	Timeout              time.Duration
	Overwrite            bool
	DarkMode             bool
	FullPage             bool
	RemoveSelectors      []string
	WaitUntilNetworkIdle bool
	SettleDelay          time.Duration
	ThumbnailBase        string
}

// DefaultOptions mirrors the settings the site screenshots have always used.
func DefaultOptions() Options {
	return Options{
		Width:                1280,
		Height:               800,
		ScaleFactor:          1,
		ImageType:            "jpeg",
		Quality:              0.95,
		Timeout:              20 * time.Second,
		Overwrite:            true,
		DarkMode:             true,
		WaitUntilNetworkIdle: true,
		SettleDelay:          500 * time.Millisecond,
		ThumbnailBase:        DefaultThumbnailBase,
	}
}

// Client captures URLs through a shared limiter. Safe for concurrent use.
type Client struct {
	limiter  *ratelimit.Limiter
	renderer screenshot.Renderer
	fetcher  screenshot.Fetcher
	fs       afero.Fs
	opts     Options
	logger   *zap.Logger
}

// New wires a Client. The limiter should be shared by every caller in the run.
func New(
	limiter *ratelimit.Limiter,
	renderer screenshot.Renderer,
	fetcher screenshot.Fetcher,
	fs afero.Fs,
	opts Options,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ThumbnailBase == "" {
		opts.ThumbnailBase = DefaultThumbnailBase
	}
	return &Client{
		limiter:  limiter,
		renderer: renderer,
		fetcher:  fetcher,
		fs:       fs,
		opts:     opts,
		logger:   logger.Named("capture"),
	}
}

// Options returns the options the client was built with.
func (c *Client) Options() Options {
	return c.opts
}

// Capture writes a screenshot of rawURL to outPath and reports success.
// Failures are logged and counted, never returned.
func (c *Client) Capture(ctx context.Context, rawURL, outPath string) bool {
	return c.CaptureErr(ctx, rawURL, outPath) == nil
}

// CaptureErr is Capture with the failure as a *screenshot.CaptureError.
func (c *Client) CaptureErr(ctx context.Context, rawURL, outPath string) error {
	kind := classify.Classify(rawURL)
	start := time.Now()

	err := c.capture(ctx, kind, rawURL, outPath)
	metrics.ObserveCaptureDuration(kind.String(), time.Since(start))
	if err != nil {
		metrics.ObserveCapture(kind.String(), metrics.OutcomeFail)
		c.logger.Warn("capture failed",
			zap.String("status", metrics.OutcomeFail),
			zap.String("kind", kind.String()),
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return &screenshot.CaptureError{URL: rawURL, Err: err}
	}
	metrics.ObserveCapture(kind.String(), metrics.OutcomeDone)
	return nil
}

func (c *Client) capture(ctx context.Context, kind classify.Kind, rawURL, outPath string) error {
	if !c.opts.Overwrite {
		exists, err := afero.Exists(c.fs, outPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", outPath, err)
		}
		if exists {
			return ErrExists
		}
	}

	var (
		data []byte
		err  error
	)
	switch kind {
	case classify.KindYouTubeVideo:
		data, err = c.thumbnail(ctx, classify.YouTubeID(rawURL))
	case classify.KindGitHubRepo:
		req := c.renderRequest(withReadmeAnchor(rawURL))
		req.ScrollTo = readmeAnchor
		data, err = c.render(ctx, req)
	default:
		data, err = c.render(ctx, c.renderRequest(rawURL))
	}
	if err != nil {
		return err
	}
	return c.write(outPath, data)
}

func (c *Client) render(ctx context.Context, req screenshot.RenderRequest) ([]byte, error) {
	var data []byte
	err := c.limiter.Do(ctx, func(ctx context.Context) error {
		var renderErr error
		data, renderErr = c.renderer.Render(ctx, req)
		return renderErr
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", req.URL, err)
	}
	return data, nil
}

func (c *Client) renderRequest(rawURL string) screenshot.RenderRequest {
	return screenshot.RenderRequest{
		URL:                  rawURL,
		Width:                c.opts.Width,
		Height:               c.opts.Height,
		ScaleFactor:          c.opts.ScaleFactor,
		ImageType:            c.opts.ImageType,
		Quality:              c.opts.Quality,
		Timeout:              c.opts.Timeout,
		DarkMode:             c.opts.DarkMode,
		FullPage:             c.opts.FullPage,
		RemoveSelectors:      c.opts.RemoveSelectors,
		WaitUntilNetworkIdle: c.opts.WaitUntilNetworkIdle,
		SettleDelay:          c.opts.SettleDelay,
	}
}

// thumbnail downloads the max resolution thumbnail, falling back to hqdefault on 404.
func (c *Client) thumbnail(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, errors.New("missing youtube video id")
	}
	base := strings.TrimSuffix(c.opts.ThumbnailBase, "/") + "/" + id + "/"

	resp, err := c.fetch(ctx, base+"maxresdefault.jpg")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("max resolution thumbnail missing", zap.String("video_id", id))
		resp, err = c.fetch(ctx, base+"hqdefault.jpg")
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thumbnail %s: unexpected status %d", resp.URL, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("thumbnail %s: empty body", resp.URL)
	}
	return resp.Body, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (screenshot.FetchResponse, error) {
	var resp screenshot.FetchResponse
	err := c.limiter.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		resp, fetchErr = c.fetcher.Get(ctx, rawURL)
		return fetchErr
	})
	if err != nil {
		return screenshot.FetchResponse{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.URL == "" {
		resp.URL = rawURL
	}
	return resp, nil
}

func (c *Client) write(outPath string, data []byte) error {
	if err := c.fs.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	if err := afero.WriteFile(c.fs, outPath, data, os.FileMode(0o644)); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

func withReadmeAnchor(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL + readmeAnchor
}
