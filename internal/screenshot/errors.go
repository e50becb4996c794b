package screenshot

import "fmt"

// FetchError reports a catalog source that could not be retrieved or decoded.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch catalog %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CaptureError reports a URL that produced no screenshot.
type CaptureError struct {
	URL string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.URL, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// UploadError reports a screenshot the CDN rejected or never received.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
