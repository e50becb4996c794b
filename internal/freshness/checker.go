// Package freshness decides whether an existing screenshot is recent enough to keep.
package freshness

import (
	"time"

	"github.com/spf13/afero"

	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// DefaultMaxAge is how long a capture stays fresh unless configured otherwise.
const DefaultMaxAge = 5 * 24 * time.Hour

// Checker compares artifact modification times against a maximum age.
type Checker struct {
	fs     afero.Fs
	clock  screenshot.Clock
	maxAge time.Duration
}

// New builds a Checker. A non-positive maxAge falls back to DefaultMaxAge.
func New(fs afero.Fs, clock screenshot.Clock, maxAge time.Duration) *Checker {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Checker{fs: fs, clock: clock, maxAge: maxAge}
}

// IsFresh reports whether path exists and was modified less than maxAge ago.
func (c *Checker) IsFresh(path string) bool {
	info, err := c.fs.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return c.clock.Now().Sub(info.ModTime()) < c.maxAge
}

// MaxAge returns the configured threshold.
func (c *Checker) MaxAge() time.Duration {
	return c.maxAge
}
