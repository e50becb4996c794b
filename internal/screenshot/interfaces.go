package screenshot

import (
	"context"
	"time"
)

// Fetcher performs a plain HTTP GET and returns the response regardless of status.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (FetchResponse, error)
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// RenderRequest describes one browser capture.
type RenderRequest struct {
	URL                  string
	Width                int
	Height               int
	ScaleFactor          float64
	ImageType            string
	Quality              float64
	Timeout              time.Duration
	DarkMode             bool
	FullPage             bool
	RemoveSelectors      []string
	WaitUntilNetworkIdle bool
	SettleDelay          time.Duration
	// ScrollTo is a CSS selector scrolled into view before the capture, if present.
	ScrollTo string
}

// Renderer loads a page in a browser and returns the encoded image.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// Capturer renders or downloads one URL into outPath and reports success.
type Capturer interface {
	Capture(ctx context.Context, rawURL, outPath string) bool
}

// Uploader pushes image bytes to a CDN and returns the public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs and unique upload prefixes.
type IDGenerator interface {
	NewID() (string, error)
}
