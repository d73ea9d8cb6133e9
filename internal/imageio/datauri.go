package imageio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrDataURI is returned for strings that are not base64 data URIs.
var ErrDataURI = errors.New("imageio: malformed data URI")

// EncodeDataURI returns data as a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI decodes a base64 data URI. Bare base64 (no "data:" prefix) is
// accepted and its type is sniffed from the decoded bytes.
func ParseDataURI(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", fmt.Errorf("%w: empty", ErrDataURI)
	}

	if !strings.HasPrefix(s, "data:") {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrDataURI, err)
		}
		mime, err := DetectMIME(data)
		if err != nil {
			return nil, "", err
		}
		return data, mime, nil
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing comma", ErrDataURI)
	}
	mime, enc, ok := strings.Cut(header, ";")
	if !ok || enc != "base64" {
		return nil, "", fmt.Errorf("%w: only base64 data URIs are supported", ErrDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDataURI, err)
	}
	if mime == "" {
		if mime, err = DetectMIME(data); err != nil {
			return nil, "", err
		}
	}
	return data, mime, nil
}
