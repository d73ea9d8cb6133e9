// Package imageio loads the kitchen photos users upload: it checks the
// format, reads EXIF metadata and downscales large photos before they are
// sent to the image model.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// ErrUnsupported is returned for data that is not one of the accepted image formats.
var ErrUnsupported = errors.New("imageio: unsupported image format")

// SupportedImageExtensions maps accepted file extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// MIMEForExt returns the MIME type for a file extension.
func MIMEForExt(ext string) (string, error) {
	if m, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: extension %q", ErrUnsupported, ext)
}

// IsImage reports whether path has an accepted image extension.
func IsImage(path string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsSupportedMIME reports whether mime is an accepted image type.
func IsSupportedMIME(mime string) bool {
	for _, m := range SupportedImageExtensions {
		if m == mime {
			return true
		}
	}
	return false
}

// DetectMIME sniffs the image type from its leading bytes.
func DetectMIME(data []byte) (string, error) {
	mime := http.DetectContentType(data)
	if !IsSupportedMIME(mime) {
		return "", fmt.Errorf("%w: detected %s", ErrUnsupported, mime)
	}
	return mime, nil
}

// Decode sniffs and decodes an image.
func Decode(data []byte) (image.Image, string, error) {
	mime, err := DetectMIME(data)
	if err != nil {
		return nil, "", err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", mime, err)
	}
	return img, mime, nil
}
