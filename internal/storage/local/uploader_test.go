// Package local_test tests the directory uploader.
package local_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolshots/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		_, err := local.New(fs, local.Config{BaseDir: "/srv/shots"})
		require.NoError(t, err)
		ok, err := afero.DirExists(fs, "/srv/shots")
		require.NoError(t, err)
		assert.True(t, ok)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(afero.NewMemMapFs(), local.Config{})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/srv/file", []byte("x"), 0o644))
		_, err := local.New(fs, local.Config{BaseDir: "/srv/file"})
		assert.Error(t, err)
	})
	t.Run("ReadOnly", func(t *testing.T) {
		_, err := local.New(afero.NewReadOnlyFs(afero.NewMemMapFs()), local.Config{BaseDir: "/srv/shots"})
		assert.Error(t, err)
	})
}

func TestUpload(t *testing.T) {
	fs := afero.NewMemMapFs()
	uploader, err := local.New(fs, local.Config{BaseDir: "/srv/shots", BaseURL: "https://shots.example.com/"})
	require.NoError(t, err)

	t.Run("ValidUpload", func(t *testing.T) {
		url, err := uploader.Upload(context.Background(), "toolA/a.jpg", "image/jpeg", []byte("img"))
		require.NoError(t, err)
		assert.Equal(t, "https://shots.example.com/toolA/a.jpg", url)

		data, err := afero.ReadFile(fs, filepath.Join("/srv/shots", "toolA", "a.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "img", string(data))
	})
	t.Run("EmptyName", func(t *testing.T) {
		_, err := uploader.Upload(context.Background(), "", "image/jpeg", []byte("img"))
		assert.Error(t, err)
	})
	t.Run("PathTraversal", func(t *testing.T) {
		_, err := uploader.Upload(context.Background(), "../escape.jpg", "image/jpeg", []byte("img"))
		assert.Error(t, err)
	})
}

func TestUploadFileURIWithoutBaseURL(t *testing.T) {
	fs := afero.NewMemMapFs()
	uploader, err := local.New(fs, local.Config{BaseDir: "/srv/shots"})
	require.NoError(t, err)

	url, err := uploader.Upload(context.Background(), "toolA/a.jpg", "image/jpeg", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join("/srv/shots", "toolA", "a.jpg"), url)
}
