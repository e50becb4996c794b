package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestUploader(t *testing.T, handler http.Handler, cfg Config) *Uploader {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	uploader, err := New(client, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = uploader.Close() })
	return uploader
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	objectName := "toolA/https%3A%2F%2FtoolA.dev.jpg"
	objectData := []byte("jpeg-bytes")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/shots/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(objectData))
		assert.Contains(t, string(body), "image/jpeg")

		fmt.Fprintf(w, `{"name": %q, "bucket": "shots"}`, objectName)
	})

	uploader := newTestUploader(t, handler, Config{Bucket: "shots"})
	url, err := uploader.Upload(context.Background(), objectName, "image/jpeg", objectData)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/shots/"+objectName, url)
}

func TestUploadServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	uploader := newTestUploader(t, handler, Config{Bucket: "shots"})
	_, err := uploader.Upload(context.Background(), "toolA/a.jpg", "image/jpeg", []byte("x"))
	assert.Error(t, err)
}

func TestUploadRequiresName(t *testing.T) {
	uploader := newTestUploader(t, http.NotFoundHandler(), Config{Bucket: "shots"})
	_, err := uploader.Upload(context.Background(), " ", "image/jpeg", nil)
	assert.Error(t, err)
}

func TestPublicURL(t *testing.T) {
	u := &Uploader{cfg: Config{Bucket: "shots"}}
	assert.Equal(t, "https://storage.googleapis.com/shots/a/b.jpg", u.publicURL("a/b.jpg"))

	u.cfg.PublicBaseURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/a/b.jpg", u.publicURL("/a/b.jpg"))
}
