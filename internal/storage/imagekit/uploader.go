// Package imagekit uploads screenshots through the ImageKit SDK.
package imagekit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	ikgo "github.com/imagekit-developer/imagekit-go"
	"github.com/imagekit-developer/imagekit-go/api/uploader"
)

// DefaultEndpoint is the ImageKit upload API prefix.
const DefaultEndpoint = "https://upload.imagekit.io/api/v1/"

// DefaultURLEndpoint is the delivery host used when none is configured.
const DefaultURLEndpoint = "https://ik.imagekit.io/"

const defaultTimeout = 60 * time.Second

// ErrMissingCredentials is returned when either API key is empty.
var ErrMissingCredentials = errors.New("imagekit public and private keys are required")

// Config holds ImageKit account settings.
type Config struct {
	PublicKey  string
	PrivateKey string
	// Endpoint is the upload API prefix; "files/upload" is appended by the SDK.
	Endpoint    string
	URLEndpoint string
	// UniqueFileName asks ImageKit to add its own suffix instead of overwriting.
	UniqueFileName bool
	// Timeout bounds one upload call.
	Timeout time.Duration
}

// Uploader implements screenshot.Uploader for ImageKit.
type Uploader struct {
	cfg Config
	api *uploader.API
}

// New validates credentials and returns an Uploader.
func New(cfg Config) (*Uploader, error) {
	if strings.TrimSpace(cfg.PublicKey) == "" || strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.URLEndpoint == "" {
		cfg.URLEndpoint = DefaultURLEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	ik := ikgo.NewFromParams(ikgo.NewParams{
		PrivateKey:  cfg.PrivateKey,
		PublicKey:   cfg.PublicKey,
		UrlEndpoint: cfg.URLEndpoint,
	})
	ik.Uploader.Config.API.UploadPrefix = strings.TrimSuffix(cfg.Endpoint, "/") + "/"
	return &Uploader{cfg: cfg, api: ik.Uploader}, nil
}

// Upload sends data as name (folder/file) and returns the CDN URL ImageKit assigns.
// ImageKit detects the image type itself, so contentType is not sent.
func (u *Uploader) Upload(ctx context.Context, name string, _ string, data []byte) (string, error) {
	folder, fileName := path.Split(strings.TrimPrefix(name, "/"))
	if strings.TrimSpace(fileName) == "" {
		return "", fmt.Errorf("file name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	unique := u.cfg.UniqueFileName
	overwrite := !unique
	param := uploader.UploadParam{
		FileName:          fileName,
		UseUniqueFileName: &unique,
		OverwriteFile:     &overwrite,
	}
	if folder != "" {
		param.Folder = "/" + strings.TrimSuffix(folder, "/")
	}

	resp, err := u.api.Upload(ctx, base64.StdEncoding.EncodeToString(data), param)
	if err != nil {
		return "", fmt.Errorf("imagekit upload %s: %w", name, err)
	}
	if resp == nil || resp.Data.Url == "" {
		return "", fmt.Errorf("imagekit upload %s: response has no url", name)
	}
	return resp.Data.Url, nil
}
