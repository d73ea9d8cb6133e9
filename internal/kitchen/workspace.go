package kitchen

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
)

// Workspace is the application state that history records and persistence saves.
// Images are held as fingerprints so the history document stays small.
type Workspace struct {
	SourceImage     string         `json:"sourceImage,omitempty"`
	Operation       string         `json:"operation,omitempty"`
	Style           string         `json:"style,omitempty"`
	Prompt          string         `json:"prompt,omitempty"`
	Model           string         `json:"model,omitempty"`
	Params          map[string]any `json:"params,omitempty"`
	ReferenceImages []string       `json:"referenceImages,omitempty"`
	LastResult      string         `json:"lastResult,omitempty"`
	PhotoMetadata   map[string]any `json:"photoMetadata,omitempty"`
}

// Actions recorded in history.
const (
	ActionGenerate = "workspace/generate"
	ActionReset    = "workspace/reset"
)

// clone returns a deep copy so history entries never share maps or slices
// with the live state.
func (w Workspace) clone() Workspace {
	w.Params = maps.Clone(w.Params)
	w.ReferenceImages = slices.Clone(w.ReferenceImages)
	w.PhotoMetadata = maps.Clone(w.PhotoMetadata)
	return w
}

// fingerprint identifies image bytes without storing them.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:8])
}
