package headless

import (
	"context"

	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// Noop implements screenshot.Renderer when no browser is available.
// Every render fails; thumbnail downloads are unaffected.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always returns ErrRendererDisabled.
func (Noop) Render(_ context.Context, _ screenshot.RenderRequest) ([]byte, error) {
	return nil, ErrRendererDisabled
}

// Close is a no-op.
func (Noop) Close() error { return nil }
