package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshots/internal/clock/system"
	"github.com/JakeFAU/toolshots/internal/freshness"
	"github.com/JakeFAU/toolshots/internal/manifest"
	pubmemory "github.com/JakeFAU/toolshots/internal/publisher/memory"
	"github.com/JakeFAU/toolshots/internal/screenshot"
	"github.com/JakeFAU/toolshots/internal/storage/memory"
)

type staticCatalog struct {
	tools screenshot.Catalog
	err   error
}

func (s staticCatalog) Load(context.Context) (screenshot.Catalog, error) {
	return s.tools, s.err
}

type fakeCapturer struct {
	fs   afero.Fs
	mu   sync.Mutex
	urls []string
	fail map[string]bool
}

func (f *fakeCapturer) Capture(_ context.Context, rawURL, outPath string) bool {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	fail := f.fail[rawURL]
	f.mu.Unlock()
	if fail {
		return false
	}
	if err := f.fs.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return false
	}
	return afero.WriteFile(f.fs, outPath, []byte("img:"+rawURL), 0o644) == nil
}

func (f *fakeCapturer) captured() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("pubsub unavailable")
}

type harness struct {
	fs        afero.Fs
	capturer  *fakeCapturer
	uploader  *memory.Uploader
	publisher *pubmemory.Publisher
	store     *manifest.Store
	deps      Deps
}

func newHarness(tools screenshot.Catalog) *harness {
	fs := afero.NewMemMapFs()
	clk := system.New()
	h := &harness{
		fs:        fs,
		capturer:  &fakeCapturer{fs: fs, fail: map[string]bool{}},
		uploader:  memory.NewUploader(),
		publisher: pubmemory.New(nil),
		store:     manifest.NewStore(fs, "screenshots.json"),
	}
	h.deps = Deps{
		Catalog:   staticCatalog{tools: tools},
		Manifest:  h.store,
		Freshness: freshness.New(fs, clk, freshness.DefaultMaxAge),
		Capturer:  h.capturer,
		Uploader:  h.uploader,
		Publisher: h.publisher,
		IDs:       &seqIDs{},
		Clock:     clk,
		FS:        fs,
	}
	return h
}

func (h *harness) run(t *testing.T, cfg Config) screenshot.Summary {
	t.Helper()
	summary, err := New(h.deps, cfg, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func strPtr(s string) *string { return &s }

func toolA() screenshot.Catalog {
	return screenshot.Catalog{
		"toolA": {
			Name:      "toolA",
			Homepage:  "https://toolA.dev",
			Source:    strPtr("https://github.com/x/toolA"),
			Resources: []screenshot.Resource{},
		},
	}
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(toolA())
	summary := h.run(t, Config{ToolConcurrency: 2, NotifyTopic: "runs"})

	assert.Equal(t, []string{"https://toolA.dev", "https://github.com/x/toolA"}, h.capturer.captured())
	assert.Equal(t, 1, summary.Tools)
	assert.Equal(t, 2, summary.Captured)
	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, 2, summary.RecordsMerged)
	assert.Equal(t, "id-1", summary.RunID)
	assert.Equal(t, "screenshots.json", summary.ManifestPath)

	got, err := h.store.Load()
	require.NoError(t, err)
	want := manifest.Manifest{
		"toolA": {
			{Path: "memory://toolA/https%3A%2F%2FtoolA.dev.jpg", URL: "https://toolA.dev"},
			{Path: "memory://toolA/https%3A%2F%2Fgithub.com%2Fx%2FtoolA.jpg", URL: "https://github.com/x/toolA"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}

	data, contentType, ok := h.uploader.Object("toolA/https%3A%2F%2FtoolA.dev.jpg")
	require.True(t, ok)
	assert.Equal(t, "img:https://toolA.dev", string(data))
	assert.Equal(t, "image/jpeg", contentType)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "runs", msgs[0].Topic)
	published, ok := msgs[0].Payload.(screenshot.Summary)
	require.True(t, ok)
	assert.Equal(t, summary.RunID, published.RunID)
}

func TestRunSecondPassSkipsFreshArtifacts(t *testing.T) {
	h := newHarness(toolA())
	h.run(t, Config{})
	first, err := h.store.Load()
	require.NoError(t, err)

	summary := h.run(t, Config{})
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Captured)
	assert.Zero(t, summary.Uploaded)
	assert.Len(t, h.capturer.captured(), 2, "no new captures on the second run")

	second, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunRecapturesStaleArtifacts(t *testing.T) {
	h := newHarness(toolA())
	h.run(t, Config{})

	stale := time.Now().Add(-6 * 24 * time.Hour)
	path := filepath.Join("screenshots", "toolA", screenshot.FileName("https://toolA.dev", ".jpg"))
	require.NoError(t, h.fs.Chtimes(path, stale, stale))

	summary := h.run(t, Config{})
	assert.Equal(t, 1, summary.Captured)
	assert.Equal(t, 1, summary.Skipped)

	got, err := h.store.Load()
	require.NoError(t, err)
	assert.Len(t, got["toolA"], 2, "recapture replaces the record in place")
}

func TestRunBackfillsFreshArtifactMissingFromManifest(t *testing.T) {
	h := newHarness(toolA())
	path := filepath.Join("screenshots", "toolA", screenshot.FileName("https://toolA.dev", ".jpg"))
	require.NoError(t, afero.WriteFile(h.fs, path, []byte("earlier"), 0o644))

	summary := h.run(t, Config{BackfillMissing: true})
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Captured)
	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, []string{"https://github.com/x/toolA"}, h.capturer.captured())

	got, err := h.store.Load()
	require.NoError(t, err)
	rec, ok := got.Lookup("toolA", "https://toolA.dev")
	require.True(t, ok)
	assert.Equal(t, "memory://toolA/https%3A%2F%2FtoolA.dev.jpg", rec.Path)
}

func TestRunDuplicateURLInToolUploadsOnce(t *testing.T) {
	h := newHarness(screenshot.Catalog{
		"toolA": {Name: "toolA", Homepage: "https://toolA.dev", Pricing: strPtr("https://toolA.dev")},
	})

	summary := h.run(t, Config{BackfillMissing: true})
	assert.Equal(t, 1, summary.Captured)
	assert.Equal(t, 1, summary.Skipped, "second listing finds the file just written")
	assert.Equal(t, 1, summary.Uploaded)
	assert.Equal(t, 1, summary.RecordsMerged)
	assert.Len(t, h.uploader.Names(), 1)

	got, err := h.store.Load()
	require.NoError(t, err)
	assert.Len(t, got["toolA"], 1)
}

func TestRunWithoutBackfillLeavesManifestAlone(t *testing.T) {
	h := newHarness(toolA())
	path := filepath.Join("screenshots", "toolA", screenshot.FileName("https://toolA.dev", ".jpg"))
	require.NoError(t, afero.WriteFile(h.fs, path, []byte("earlier"), 0o644))

	summary := h.run(t, Config{})
	assert.Equal(t, 1, summary.Uploaded)

	got, err := h.store.Load()
	require.NoError(t, err)
	_, ok := got.Lookup("toolA", "https://toolA.dev")
	assert.False(t, ok)
}

func TestRunCaptureAndUploadFailuresAreLocal(t *testing.T) {
	tools := toolA()
	tools["toolB"] = screenshot.Tool{Name: "toolB", Homepage: "https://toolB.dev"}
	h := newHarness(tools)
	h.capturer.fail["https://toolA.dev"] = true
	h.uploader.FailOn("toolB/https%3A%2F%2FtoolB.dev.jpg", errors.New("cdn rejected"))

	summary := h.run(t, Config{ToolConcurrency: 2})
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Captured)
	assert.Equal(t, 1, summary.Uploaded)
	assert.Equal(t, 1, summary.UploadFailed)

	got, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, manifest.Manifest{
		"toolA": {{Path: "memory://toolA/https%3A%2F%2Fgithub.com%2Fx%2FtoolA.jpg", URL: "https://github.com/x/toolA"}},
	}, got)
}

func TestRunKeepsUntouchedTools(t *testing.T) {
	h := newHarness(toolA())
	require.NoError(t, h.store.Save(manifest.Manifest{
		"retired": {{Path: "https://cdn/old.jpg", URL: "https://old.dev"}},
	}))

	h.run(t, Config{})
	got, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, []screenshot.Record{{Path: "https://cdn/old.jpg", URL: "https://old.dev"}}, got["retired"])
	assert.Len(t, got["toolA"], 2)
}

func TestRunCatalogFailureIsFatal(t *testing.T) {
	h := newHarness(nil)
	h.deps.Catalog = staticCatalog{err: &screenshot.FetchError{Source: "https://x", Err: errors.New("503")}}

	_, err := New(h.deps, Config{}, nil).Run(context.Background())
	var fetchErr *screenshot.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Empty(t, h.capturer.captured())

	exists, _ := afero.Exists(h.fs, "screenshots.json")
	assert.False(t, exists, "manifest must not be written")
}

func TestRunCorruptManifestIsFatal(t *testing.T) {
	h := newHarness(toolA())
	require.NoError(t, afero.WriteFile(h.fs, "screenshots.json", []byte("{not json"), 0o644))

	_, err := New(h.deps, Config{}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, h.capturer.captured())

	raw, readErr := afero.ReadFile(h.fs, "screenshots.json")
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(raw))
}

func TestRunSkipsUnsafeToolNames(t *testing.T) {
	tools := toolA()
	tools["../escape"] = screenshot.Tool{Homepage: "https://evil.dev"}
	h := newHarness(tools)

	summary := h.run(t, Config{})
	assert.Equal(t, 1, summary.ToolsSkipped)
	assert.NotContains(t, h.capturer.captured(), "https://evil.dev")
}

func TestRunUniqueNames(t *testing.T) {
	h := newHarness(screenshot.Catalog{"toolA": {Homepage: "https://toolA.dev"}})
	h.run(t, Config{UniqueNames: true})

	names := h.uploader.Names()
	require.Len(t, names, 1)
	assert.Equal(t, "toolA/id-2-https%3A%2F%2FtoolA.dev.jpg", names[0])
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(toolA())
	h.deps.Publisher = failingPublisher{}

	summary := h.run(t, Config{NotifyTopic: "runs"})
	assert.Equal(t, 2, summary.Uploaded)
}

func TestRunPNGExtension(t *testing.T) {
	h := newHarness(screenshot.Catalog{"toolA": {Homepage: "https://toolA.dev"}})
	h.run(t, Config{ImageType: "png"})

	_, contentType, ok := h.uploader.Object("toolA/https%3A%2F%2FtoolA.dev.png")
	require.True(t, ok)
	assert.Equal(t, "image/png", contentType)
}

func TestSafeToolName(t *testing.T) {
	for name, want := range map[string]bool{
		"semgrep":     true,
		"c++check":    true,
		"":            false,
		" ":           false,
		".":           false,
		"..":          false,
		"a/b":         false,
		`a\b`:         false,
		"nul\x00byte": false,
	} {
		assert.Equal(t, want, safeToolName(name), name)
	}
}
