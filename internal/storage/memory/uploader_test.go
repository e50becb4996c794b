package memory

import (
	"context"
	"errors"
	"testing"
)

func TestUploaderCopiesData(t *testing.T) {
	t.Parallel()

	u := NewUploader()
	payload := []byte("content")
	url, err := u.Upload(context.Background(), "toolA/a.jpg", "image/jpeg", payload)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if url != "memory://toolA/a.jpg" {
		t.Fatalf("unexpected url %s", url)
	}
	payload[0] = 'C'
	stored, contentType, ok := u.Object("toolA/a.jpg")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if names := u.Names(); len(names) != 1 || names[0] != "toolA/a.jpg" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestUploaderFailOn(t *testing.T) {
	t.Parallel()

	u := NewUploader()
	boom := errors.New("cdn down")
	u.FailOn("toolA/a.jpg", boom)
	if _, err := u.Upload(context.Background(), "toolA/a.jpg", "image/jpeg", nil); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if _, _, ok := u.Object("toolA/a.jpg"); ok {
		t.Fatal("failed upload must not be stored")
	}
}
