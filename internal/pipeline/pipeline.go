// Package pipeline runs one screenshot synchronization: catalog to captures to
// uploads to an updated manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/toolshots/internal/catalog"
	"github.com/JakeFAU/toolshots/internal/classify"
	"github.com/JakeFAU/toolshots/internal/manifest"
	"github.com/JakeFAU/toolshots/internal/metrics"
	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// CatalogLoader returns the merged tool catalog.
type CatalogLoader interface {
	Load(ctx context.Context) (screenshot.Catalog, error)
}

// ManifestStore reads and replaces the persisted manifest.
type ManifestStore interface {
	Load() (manifest.Manifest, error)
	Save(m manifest.Manifest) error
	Path() string
}

// FreshnessChecker reports whether an artifact can be reused.
type FreshnessChecker interface {
	IsFresh(path string) bool
}

// Config controls Pipeline behavior.
type Config struct {
	ScreenshotsDir  string
	ImageType       string
	ToolConcurrency int
	// UniqueNames prefixes every object name with a fresh UUID.
	UniqueNames bool
	// BackfillMissing uploads fresh artifacts the manifest has no record for.
	BackfillMissing bool
	// NotifyTopic receives the run summary when a publisher is configured.
	NotifyTopic string
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Catalog   CatalogLoader
	Manifest  ManifestStore
	Freshness FreshnessChecker
	Capturer  screenshot.Capturer
	Uploader  screenshot.Uploader
	Publisher screenshot.Publisher
	IDs       screenshot.IDGenerator
	Clock     screenshot.Clock
	FS        afero.Fs
}

// Pipeline executes synchronization runs.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

type toolResult struct {
	records []screenshot.Record
	counts  screenshot.Summary
}

// New constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ScreenshotsDir == "" {
		cfg.ScreenshotsDir = "screenshots"
	}
	if cfg.ImageType == "" {
		cfg.ImageType = "jpeg"
	}
	if cfg.ToolConcurrency <= 0 {
		cfg.ToolConcurrency = 1
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("pipeline"),
	}
}

// Run performs one synchronization. Catalog and manifest read failures abort
// before any capture; per-URL failures are counted in the Summary.
func (p *Pipeline) Run(ctx context.Context) (screenshot.Summary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return screenshot.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := screenshot.Summary{
		RunID:        runID,
		StartedAt:    p.deps.Clock.Now(),
		ManifestPath: p.deps.Manifest.Path(),
	}
	logger := p.logger.With(zap.String("run_id", runID))

	tools, err := p.deps.Catalog.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("load catalog: %w", err)
	}
	existing, err := p.deps.Manifest.Load()
	if err != nil {
		return summary, fmt.Errorf("load manifest: %w", err)
	}
	logger.Info("run started",
		zap.Int("tools", len(tools)),
		zap.Int("manifest_records", existing.Len()),
	)

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	summary.Tools = len(names)

	results := make([]toolResult, len(names))
	var g errgroup.Group
	g.SetLimit(p.cfg.ToolConcurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i] = p.processTool(ctx, logger, name, tools[name], existing)
			return nil
		})
	}
	_ = g.Wait()

	updates := make(map[string][]screenshot.Record)
	for i, res := range results {
		summary.Add(res.counts)
		if len(res.records) > 0 {
			updates[names[i]] = res.records
			summary.RecordsMerged += len(res.records)
		}
	}

	merged := manifest.Merge(existing, updates)
	if err := p.deps.Manifest.Save(merged); err != nil {
		return summary, fmt.Errorf("persist manifest: %w", err)
	}
	summary.FinishedAt = p.deps.Clock.Now()
	metrics.ObserveManifest(merged.Len(), summary.FinishedAt)

	logger.Info("run finished",
		zap.Int("captured", summary.Captured),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("uploaded", summary.Uploaded),
		zap.Int("upload_failed", summary.UploadFailed),
		zap.Int("records_merged", summary.RecordsMerged),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	p.notify(ctx, logger, summary)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

func (p *Pipeline) processTool(
	ctx context.Context,
	logger *zap.Logger,
	name string,
	tool screenshot.Tool,
	existing manifest.Manifest,
) toolResult {
	var res toolResult
	if !safeToolName(name) {
		logger.Warn("skipping tool with unsafe name", zap.String("tool", name))
		res.counts.ToolsSkipped++
		return res
	}

	ext := screenshot.Extension(p.cfg.ImageType)
	// A URL listed twice in one tool is uploaded once per run.
	uploaded := make(map[string]bool)
	for _, rawURL := range catalog.CollectURLs(tool) {
		if ctx.Err() != nil {
			break
		}
		fileName := screenshot.FileName(rawURL, ext)
		outPath := filepath.Join(p.cfg.ScreenshotsDir, name, fileName)
		urlLog := logger.With(zap.String("tool", name), zap.String("url", rawURL))

		if p.deps.Freshness.IsFresh(outPath) {
			res.counts.Skipped++
			metrics.ObserveCapture(classify.Classify(rawURL).String(), metrics.OutcomeSkip)
			urlLog.Info("screenshot is fresh", zap.String("status", metrics.OutcomeSkip))
			if _, ok := existing.Lookup(name, rawURL); ok || uploaded[rawURL] || !p.cfg.BackfillMissing {
				continue
			}
			urlLog.Info("uploading fresh screenshot missing from manifest")
		} else {
			urlLog.Info("capturing", zap.String("status", metrics.OutcomeFetch))
			if !p.deps.Capturer.Capture(ctx, rawURL, outPath) {
				res.counts.Failed++
				continue
			}
			res.counts.Captured++
		}

		cdnURL, err := p.upload(ctx, name, fileName, outPath)
		if err != nil {
			res.counts.UploadFailed++
			metrics.ObserveUpload(metrics.OutcomeFail)
			urlLog.Warn("upload failed", zap.String("status", metrics.OutcomeFail), zap.Error(err))
			continue
		}
		res.counts.Uploaded++
		uploaded[rawURL] = true
		metrics.ObserveUpload(metrics.OutcomeDone)
		res.records = append(res.records, screenshot.Record{Path: cdnURL, URL: rawURL})
		urlLog.Info("screenshot published",
			zap.String("status", metrics.OutcomeDone),
			zap.String("path", cdnURL),
		)
	}
	return res
}

func (p *Pipeline) upload(ctx context.Context, tool, fileName, outPath string) (string, error) {
	name, err := p.objectName(tool, fileName)
	if err != nil {
		return "", &screenshot.UploadError{Name: tool + "/" + fileName, Err: err}
	}
	data, err := afero.ReadFile(p.deps.FS, outPath)
	if err != nil {
		return "", &screenshot.UploadError{Name: name, Err: fmt.Errorf("read %s: %w", outPath, err)}
	}
	url, err := p.deps.Uploader.Upload(ctx, name, screenshot.ContentType(p.cfg.ImageType), data)
	if err != nil {
		var uploadErr *screenshot.UploadError
		if errors.As(err, &uploadErr) {
			return "", err
		}
		return "", &screenshot.UploadError{Name: name, Err: err}
	}
	return url, nil
}

func (p *Pipeline) objectName(tool, fileName string) (string, error) {
	if !p.cfg.UniqueNames {
		return tool + "/" + fileName, nil
	}
	id, err := p.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate upload id: %w", err)
	}
	return tool + "/" + id + "-" + fileName, nil
}

func (p *Pipeline) notify(ctx context.Context, logger *zap.Logger, summary screenshot.Summary) {
	if p.deps.Publisher == nil || p.cfg.NotifyTopic == "" {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.NotifyTopic, summary)
	if err != nil {
		logger.Warn("publish run summary failed", zap.String("topic", p.cfg.NotifyTopic), zap.Error(err))
		return
	}
	logger.Info("published run summary", zap.String("topic", p.cfg.NotifyTopic), zap.String("message_id", id))
}

// safeToolName accepts names usable as a single path segment.
func safeToolName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
