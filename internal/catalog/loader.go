// Package catalog loads the remote tool catalog and derives the URLs worth capturing.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolshots/internal/metrics"
	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// DefaultSources are the static and dynamic analysis tool lists.
var DefaultSources = []string{
	"https://raw.githubusercontent.com/analysis-tools-dev/static-analysis/master/data/api/tools.json",
	"https://raw.githubusercontent.com/analysis-tools-dev/dynamic-analysis/master/data/api/tools.json",
}

var documentExtensions = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".ppt":  {},
	".pptx": {},
	".xls":  {},
	".xlsx": {},
	".epub": {},
}

// Loader fetches and merges catalog sources.
type Loader struct {
	fetcher screenshot.Fetcher
	sources []string
	logger  *zap.Logger
}

// NewLoader returns a Loader over sources, or DefaultSources when empty.
func NewLoader(fetcher screenshot.Fetcher, sources []string, logger *zap.Logger) *Loader {
	if len(sources) == 0 {
		sources = DefaultSources
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		fetcher: fetcher,
		sources: append([]string(nil), sources...),
		logger:  logger.Named("catalog"),
	}
}

// Load fetches every source in order. Any failure aborts with a *screenshot.FetchError.
func (l *Loader) Load(ctx context.Context) (screenshot.Catalog, error) {
	parts := make([]screenshot.Catalog, 0, len(l.sources))
	for _, source := range l.sources {
		part, err := l.loadSource(ctx, source)
		if err != nil {
			metrics.ObserveCatalogFailure()
			return nil, &screenshot.FetchError{Source: source, Err: err}
		}
		l.logger.Info("loaded catalog source",
			zap.String("source", source),
			zap.Int("tools", len(part)),
		)
		parts = append(parts, part)
	}
	return Merge(parts...), nil
}

func (l *Loader) loadSource(ctx context.Context, source string) (screenshot.Catalog, error) {
	resp, err := l.fetcher.Get(ctx, source)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var part screenshot.Catalog
	if err := json.Unmarshal(resp.Body, &part); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if part == nil {
		return nil, fmt.Errorf("decode catalog: empty document")
	}
	return part, nil
}

// Merge combines catalogs; a key in a later catalog replaces the whole earlier entry.
func Merge(catalogs ...screenshot.Catalog) screenshot.Catalog {
	merged := screenshot.Catalog{}
	for _, c := range catalogs {
		for name, tool := range c {
			merged[name] = tool
		}
	}
	return merged
}

// CollectURLs lists the URLs to capture for tool, in order:
// homepage, source (if distinct), non-document resources, pricing.
func CollectURLs(tool screenshot.Tool) []string {
	var urls []string
	add := func(u string) {
		if strings.TrimSpace(u) != "" {
			urls = append(urls, u)
		}
	}

	add(tool.Homepage)
	if src := deref(tool.Source); src != tool.Homepage {
		add(src)
	}
	for _, res := range tool.Resources {
		if isDocument(res.URL) {
			continue
		}
		add(res.URL)
	}
	add(deref(tool.Pricing))
	return urls
}

func isDocument(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	_, ok := documentExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
