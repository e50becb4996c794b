package screenshot

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// EncodeURIComponent percent-encodes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
// The output is a valid single path segment on every platform we target.
func EncodeURIComponent(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) * 3)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if shouldKeep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func shouldKeep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// FileName derives the on-disk name for a screenshot of rawURL.
func FileName(rawURL, ext string) string {
	return EncodeURIComponent(rawURL) + ext
}

// URLFromFileName reverses FileName by decoding the file stem.
func URLFromFileName(name string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	decoded, err := url.PathUnescape(stem)
	if err != nil {
		return "", fmt.Errorf("decode file name %q: %w", name, err)
	}
	return decoded, nil
}

// Extension maps an image type to its file extension.
func Extension(imageType string) string {
	switch strings.ToLower(imageType) {
	case "png":
		return ".png"
	case "webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// ContentType maps an image type to its MIME type.
func ContentType(imageType string) string {
	switch strings.ToLower(imageType) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
