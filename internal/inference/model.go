package inference

import "os"

// Gemini image model IDs
//
// | Model Name                  | API Model ID                | Use Case                        |
// |-----------------------------|-----------------------------|---------------------------------|
// | Gemini 2.5 Flash Image      | gemini-2.5-flash-image      | Fast edits, low cost            |
// | Gemini 3 Pro Image          | gemini-3-pro-image-preview  | Highest fidelity restyling      |
const (
	// ModelGemini25FlashImage is the fast, low-cost image editing model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"

	// ModelGemini3ProImage is for advanced image generation/edit.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"
)

// DefaultModelName is used when neither the request nor KITCHEN_MODEL picks a model.
const DefaultModelName = ModelGemini25FlashImage

// GetModelName returns KITCHEN_MODEL if set, else DefaultModelName.
func GetModelName() string {
	if env := os.Getenv("KITCHEN_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}

// KnownModels lists the model IDs accepted from clients.
var KnownModels = []string{ModelGemini25FlashImage, ModelGemini3ProImage}

// IsKnownModel reports whether id is one of KnownModels or the configured default.
func IsKnownModel(id string) bool {
	if id == GetModelName() {
		return true
	}
	for _, m := range KnownModels {
		if m == id {
			return true
		}
	}
	return false
}
