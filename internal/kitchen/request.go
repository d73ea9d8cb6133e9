package kitchen

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/fpang/genai-kitchen/internal/imageio"
	"github.com/fpang/genai-kitchen/internal/inference"
	"github.com/fpang/genai-kitchen/internal/resultcache"
)

// ErrDuplicateRequest is returned when an identical request was submitted
// within the duplicate window and has not produced a cached result yet.
var ErrDuplicateRequest = errors.New("kitchen: duplicate request in flight")

// ValidationError reports a bad field in a GenerateRequest.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// GenerateRequest is one generation submitted by a client. Images are data
// URIs or bare base64.
type GenerateRequest struct {
	Operation       inference.Operation `json:"operation"`
	SourceImage     string              `json:"sourceImage"`
	Prompt          string              `json:"prompt,omitempty"`
	Model           string              `json:"model,omitempty"`
	Params          map[string]any      `json:"params,omitempty"`
	ReferenceImages []string            `json:"referenceImages,omitempty"`
	Mask            string              `json:"mask,omitempty"`

	// DebounceKey groups rapid resubmissions (e.g. a slider being dragged);
	// only the last request per key within DebounceMs runs.
	DebounceKey string `json:"debounceKey,omitempty"`
	DebounceMs  *int   `json:"debounceMs,omitempty"`
}

// GenerateResponse is the outcome of a generation.
type GenerateResponse struct {
	RequestID string         `json:"requestId"`
	Images    []string       `json:"images"`
	Text      string         `json:"text,omitempty"`
	Model     string         `json:"model"`
	CacheKey  string         `json:"cacheKey"`
	Cached    bool           `json:"cached"`
	CachedAt  *time.Time     `json:"cachedAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// decoded holds the validated request. The source and reference images are
// filled in by decodeImages, which runs only after a cache miss.
type decoded struct {
	req      GenerateRequest
	model    string
	original []byte
	source   inference.Image // downscaled to the service's max dimension
	mask     *inference.Image
	refs     []inference.Image
}

// validate checks every field that can be judged without decoding the
// source or reference images. The mask is decoded because it is part of
// the cache key.
func (r GenerateRequest) validate() (*decoded, error) {
	if _, err := inference.ParseOperation(string(r.Operation)); err != nil {
		return nil, invalid("operation", "%v", err)
	}
	if r.SourceImage == "" {
		return nil, invalid("sourceImage", "is required")
	}
	if r.Operation.NeedsPrompt() && strings.TrimSpace(r.Prompt) == "" {
		return nil, invalid("prompt", "is required for %s", r.Operation)
	}
	if len(r.ReferenceImages) > inference.MaxReferences {
		return nil, invalid("referenceImages", "at most %d allowed, got %d", inference.MaxReferences, len(r.ReferenceImages))
	}
	if r.Operation == inference.OpCompose && len(r.ReferenceImages) == 0 {
		return nil, invalid("referenceImages", "compose needs at least one reference image")
	}

	model := r.Model
	if model == "" {
		model = inference.GetModelName()
	}
	if !inference.IsKnownModel(model) {
		return nil, invalid("model", "unknown model %q", model)
	}

	d := &decoded{req: r, model: model}
	if r.Mask != "" {
		img, err := decodeImage(r.Mask)
		if err != nil {
			return nil, invalid("mask", "%v", err)
		}
		d.mask = &img
	}
	return d, nil
}

// decodeImages decodes the source, downscales it to maxDim and decodes the
// references.
func (d *decoded) decodeImages(maxDim int) error {
	src, err := decodeImage(d.req.SourceImage)
	if err != nil {
		return invalid("sourceImage", "%v", err)
	}
	d.original = src.Data
	data, mime, err := imageio.Normalize(src.Data, maxDim)
	if err != nil {
		return invalid("sourceImage", "%v", err)
	}
	d.source = inference.Image{Data: data, MIMEType: mime}
	for i, ref := range d.req.ReferenceImages {
		img, err := decodeImage(ref)
		if err != nil {
			return invalid(fmt.Sprintf("referenceImages[%d]", i), "%v", err)
		}
		d.refs = append(d.refs, img)
	}
	return nil
}

func decodeImage(s string) (inference.Image, error) {
	data, mime, err := imageio.ParseDataURI(s)
	if err != nil {
		return inference.Image{}, err
	}
	if !imageio.IsSupportedMIME(mime) {
		return inference.Image{}, fmt.Errorf("%w: %s", imageio.ErrUnsupported, mime)
	}
	return inference.Image{Data: data, MIMEType: mime}, nil
}

// cacheKey identifies the result of this request from the raw image
// strings, so it is available before any image is decoded.
func (d *decoded) cacheKey() string {
	return resultcache.GenerateKey(resultcache.KeyParams{
		SourceImage:     d.req.SourceImage,
		Prompt:          d.req.Prompt,
		Model:           d.model,
		Params:          d.keyParams(),
		ReferenceImages: d.req.ReferenceImages,
	})
}

// keyParams folds the operation and mask into the generation params so
// the cache key distinguishes them.
func (d *decoded) keyParams() map[string]any {
	params := maps.Clone(d.req.Params)
	if params == nil {
		params = make(map[string]any)
	}
	params["operation"] = string(d.req.Operation)
	if d.mask != nil {
		params["mask"] = fingerprint(d.mask.Data)
	}
	return params
}
