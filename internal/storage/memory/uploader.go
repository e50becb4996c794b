// Package memory keeps uploads in memory for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Uploader stores objects in-memory and returns pseudo URLs.
type Uploader struct {
	mu    sync.RWMutex
	data  map[string][]byte
	types map[string]string
	fail  map[string]error
}

// NewUploader creates a new in-memory uploader.
func NewUploader() *Uploader {
	return &Uploader{
		data:  make(map[string][]byte),
		types: make(map[string]string),
		fail:  make(map[string]error),
	}
}

// Upload keeps a copy of data and returns memory://<name>.
func (u *Uploader) Upload(_ context.Context, name string, contentType string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err, ok := u.fail[name]; ok {
		return "", err
	}
	u.data[name] = append([]byte(nil), data...)
	u.types[name] = contentType
	return fmt.Sprintf("memory://%s", name), nil
}

// FailOn makes every later upload of name return err.
func (u *Uploader) FailOn(name string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fail[name] = err
}

// Object returns the stored bytes and content type for name.
func (u *Uploader) Object(name string) ([]byte, string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	data, ok := u.data[name]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), data...), u.types[name], true
}

// Names lists stored object names in no particular order.
func (u *Uploader) Names() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	names := make([]string, 0, len(u.data))
	for name := range u.data {
		names = append(names, name)
	}
	return names
}
