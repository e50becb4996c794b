// Package headless renders pages to images with headless Chrome.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// ErrRendererDisabled indicates rendering has been disabled via configuration.
var ErrRendererDisabled = errors.New("renderer disabled")

const defaultTimeout = 20 * time.Second

// Config controls the browser process shared by every capture.
type Config struct {
	UserAgent string
	ExecPath  string
	NoSandbox bool
}

// ChromedpRenderer implements screenshot.Renderer using chromedp.
type ChromedpRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	userAgent       string
}

// NewChromedpRenderer starts a browser and keeps it warm for the lifetime of the renderer.
func NewChromedpRenderer(cfg Config, logger *zap.Logger) (*ChromedpRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *ChromedpRenderer) Close() error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render opens req.URL in a fresh tab and returns the encoded screenshot.
func (r *ChromedpRenderer) Render(ctx context.Context, req screenshot.RenderRequest) ([]byte, error) {
	if r == nil {
		return nil, ErrRendererDisabled
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	idle := newIdleWatcher()
	if req.WaitUntilNetworkIdle {
		chromedp.ListenTarget(tabCtx, idle.observe)
	}

	var buf []byte
	if err := chromedp.Run(taskCtx, r.tasks(req, idle, &buf)); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if len(buf) == 0 {
		return nil, errors.New("chromedp returned an empty image")
	}
	r.logger.Debug("rendered page",
		zap.String("url", req.URL),
		zap.Int("bytes", len(buf)),
	)
	return buf, nil
}

func (r *ChromedpRenderer) tasks(req screenshot.RenderRequest, idle *idleWatcher, buf *[]byte) chromedp.Tasks {
	width, height := viewport(req)
	scale := req.ScaleFactor
	if scale <= 0 {
		scale = 1
	}

	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), scale, false),
	}
	if r.userAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(r.userAgent))
	}
	if req.DarkMode {
		tasks = append(tasks, emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
			{Name: "prefers-color-scheme", Value: "dark"},
		}))
	}
	if req.WaitUntilNetworkIdle {
		tasks = append(tasks, page.SetLifecycleEventsEnabled(true))
	}
	tasks = append(tasks,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if req.WaitUntilNetworkIdle {
		tasks = append(tasks, idle.wait())
	}
	if req.SettleDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(req.SettleDelay))
	}
	if len(req.RemoveSelectors) > 0 {
		var removed int
		tasks = append(tasks, chromedp.Evaluate(removeScript(req.RemoveSelectors), &removed))
	}
	if req.ScrollTo != "" {
		var found bool
		tasks = append(tasks, chromedp.Evaluate(scrollScript(req.ScrollTo), &found))
	}
	if req.FullPage {
		tasks = append(tasks, chromedp.FullScreenshot(buf, fullPageQuality(req)))
	} else {
		tasks = append(tasks, viewportScreenshot(req, buf))
	}
	return tasks
}

func viewport(req screenshot.RenderRequest) (int, int) {
	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 800
	}
	return width, height
}

func viewportScreenshot(req screenshot.RenderRequest, buf *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(captureFormat(req.ImageType))
		if q := qualityPercent(req.Quality); q > 0 && req.ImageType != "png" {
			params = params.WithQuality(int64(q))
		}
		data, err := params.Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		*buf = data
		return nil
	})
}

func captureFormat(imageType string) page.CaptureScreenshotFormat {
	switch imageType {
	case "png":
		return page.CaptureScreenshotFormatPng
	case "webp":
		return page.CaptureScreenshotFormatWebp
	default:
		return page.CaptureScreenshotFormatJpeg
	}
}

// fullPageQuality maps the request onto chromedp.FullScreenshot, which emits PNG at 100.
func fullPageQuality(req screenshot.RenderRequest) int {
	if req.ImageType == "png" {
		return 100
	}
	q := qualityPercent(req.Quality)
	if q <= 0 || q >= 100 {
		return 99
	}
	return q
}

func qualityPercent(q float64) int {
	if q <= 0 {
		return 0
	}
	if q > 1 {
		q = 1
	}
	return int(q*100 + 0.5)
}

func removeScript(selectors []string) string {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		encoded = []byte("[]")
	}
	return fmt.Sprintf(`(() => {
	let removed = 0;
	for (const sel of %s) {
		try {
			document.querySelectorAll(sel).forEach((el) => { el.remove(); removed++; });
		} catch (e) {}
	}
	return removed;
})()`, encoded)
}

func scrollScript(selector string) string {
	encoded, err := json.Marshal(selector)
	if err != nil {
		encoded = []byte(`""`)
	}
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) { return false; }
	el.scrollIntoView();
	return true;
})()`, encoded)
}

// idleWatcher closes done once the page reports networkIdle after a navigation started.
type idleWatcher struct {
	mu      sync.Mutex
	started bool
	once    sync.Once
	done    chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{done: make(chan struct{})}
}

func (w *idleWatcher) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch e.Name {
	case "init":
		w.started = true
	case "networkIdle":
		if w.started {
			w.once.Do(func() { close(w.done) })
		}
	}
}

func (w *idleWatcher) wait() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
