// Package local publishes screenshots by copying them into a served directory.
package local

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Config captures the parameters for the directory uploader.
type Config struct {
	// BaseDir is the root directory objects are written under.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// BaseURL prefixes returned URLs. Without it a file:// URI is returned.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// Uploader writes objects to a directory.
type Uploader struct {
	fs      afero.Fs
	baseDir string
	baseURL string
}

// New creates a directory uploader, creating BaseDir when needed.
func New(fsys afero.Fs, cfg Config) (*Uploader, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := fsys.Stat(cfg.BaseDir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	case err != nil:
		if mkErr := fsys.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	}

	return &Uploader{
		fs:      fsys,
		baseDir: cfg.BaseDir,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Upload writes data to BaseDir/name and returns its URL.
func (u *Uploader) Upload(_ context.Context, name string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}

	fullPath := filepath.Join(u.baseDir, filepath.FromSlash(name))
	cleanBaseDir := filepath.Clean(u.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := u.fs.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := afero.WriteFile(u.fs, fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if u.baseURL == "" {
		return "file://" + fullPath, nil
	}
	return u.baseURL + "/" + strings.TrimPrefix(name, "/"), nil
}
