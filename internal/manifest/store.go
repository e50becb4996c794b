package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultPath is where the manifest lives relative to the working directory.
const DefaultPath = "screenshots.json"

// Store reads and atomically replaces the manifest file.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a Store for path on fs.
func NewStore(fsys afero.Fs, path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{fs: fsys, path: path}
}

// Path returns the manifest location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the manifest. A missing file yields an empty manifest; a file that
// cannot be parsed is an error so it is never overwritten blindly.
func (s *Store) Load() (Manifest, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Manifest{}, nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", s.path, err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}

// Save writes m to a temp file next to the target and renames it into place.
func (s *Store) Save(m Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, dir, ".screenshots-*.json")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replace manifest %s: %w", s.path, err)
	}
	return nil
}

// Encode renders m as indented JSON with sorted keys and unescaped slashes.
func Encode(m Manifest) ([]byte, error) {
	if m == nil {
		m = Manifest{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}
