package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/toolshots/internal/fetcher/colly"
	"github.com/JakeFAU/toolshots/internal/screenshot"
)

func strPtr(s string) *string { return &s }

func newCatalogServer(t *testing.T, docs map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadMergesLaterSourceWins(t *testing.T) {
	srv := newCatalogServer(t, map[string]string{
		"/static.json": `{
			"toolA": {"name": "toolA", "homepage": "https://a.dev", "resources": [], "votes": 3},
			"shared": {"name": "shared", "homepage": "https://old.dev", "source": "https://github.com/o/shared", "votes": 1}
		}`,
		"/dynamic.json": `{
			"shared": {"name": "shared", "homepage": "https://new.dev", "votes": 9}
		}`,
	})

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second})
	loader := NewLoader(fetcher, []string{srv.URL + "/static.json", srv.URL + "/dynamic.json"}, zap.NewNop())

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.dev", got["toolA"].Homepage)
	assert.Equal(t, "https://new.dev", got["shared"].Homepage)
	assert.Nil(t, got["shared"].Source, "later entry replaces the whole tool")
	assert.Equal(t, 9, got["shared"].Votes)
}

func TestLoadFailures(t *testing.T) {
	srv := newCatalogServer(t, map[string]string{
		"/ok.json":  `{"toolA": {"name": "toolA", "homepage": "https://a.dev"}}`,
		"/bad.json": `{"toolA": [`,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second})

	tests := []struct {
		name    string
		sources []string
		failed  string
	}{
		{name: "malformed", sources: []string{srv.URL + "/ok.json", srv.URL + "/bad.json"}, failed: srv.URL + "/bad.json"},
		{name: "not found", sources: []string{srv.URL + "/missing.json"}, failed: srv.URL + "/missing.json"},
		{name: "unreachable", sources: []string{"http://127.0.0.1:1/tools.json"}, failed: "http://127.0.0.1:1/tools.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(fetcher, tt.sources, nil).Load(context.Background())
			var fetchErr *screenshot.FetchError
			require.True(t, errors.As(err, &fetchErr), "expected FetchError, got %v", err)
			assert.Equal(t, tt.failed, fetchErr.Source)
		})
	}
}

func TestNewLoaderDefaults(t *testing.T) {
	l := NewLoader(nil, nil, nil)
	assert.Equal(t, DefaultSources, l.sources)
}

func TestMerge(t *testing.T) {
	a := screenshot.Catalog{"x": {Homepage: "https://a"}, "y": {Homepage: "https://y"}}
	b := screenshot.Catalog{"x": {Homepage: "https://b"}}
	got := Merge(a, b)
	assert.Equal(t, "https://b", got["x"].Homepage)
	assert.Equal(t, "https://y", got["y"].Homepage)
	assert.Equal(t, "https://a", a["x"].Homepage, "inputs are not mutated")
	assert.Empty(t, Merge())
}

func TestCollectURLs(t *testing.T) {
	tests := []struct {
		name string
		tool screenshot.Tool
		want []string
	}{
		{
			name: "homepage and distinct source",
			tool: screenshot.Tool{Homepage: "https://toolA.dev", Source: strPtr("https://github.com/x/toolA")},
			want: []string{"https://toolA.dev", "https://github.com/x/toolA"},
		},
		{
			name: "source equal to homepage",
			tool: screenshot.Tool{Homepage: "https://github.com/x/y", Source: strPtr("https://github.com/x/y")},
			want: []string{"https://github.com/x/y"},
		},
		{
			name: "resources then pricing",
			tool: screenshot.Tool{
				Homepage: "https://h.dev",
				Resources: []screenshot.Resource{
					{Title: "talk", URL: "https://youtu.be/dQw4w9WgXcQ"},
					{Title: "paper", URL: "https://example.org/paper.PDF"},
					{Title: "slides", URL: "https://example.org/deck.pptx?dl=1"},
					{Title: "empty", URL: ""},
					{Title: "blog", URL: "https://blog.example.org/post"},
				},
				Pricing: strPtr("https://h.dev/pricing"),
			},
			want: []string{
				"https://h.dev",
				"https://youtu.be/dQw4w9WgXcQ",
				"https://blog.example.org/post",
				"https://h.dev/pricing",
			},
		},
		{
			name: "no de-duplication beyond source",
			tool: screenshot.Tool{
				Homepage:  "https://h.dev",
				Resources: []screenshot.Resource{{URL: "https://h.dev"}},
				Pricing:   strPtr("https://h.dev"),
			},
			want: []string{"https://h.dev", "https://h.dev", "https://h.dev"},
		},
		{
			name: "empty tool",
			tool: screenshot.Tool{},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectURLs(tt.tool))
		})
	}
}
