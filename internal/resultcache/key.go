package resultcache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"slices"
	"strings"
)

// KeyLength is the number of characters in a generated key.
const KeyLength = 32

// KeyParams are the inputs that identify a generation result.
type KeyParams struct {
	SourceImage     string
	Prompt          string
	Model           string
	Params          map[string]any
	ReferenceImages []string
}

// canonicalKey fixes field order; encoding/json sorts map keys at every depth.
type canonicalKey struct {
	SourceImage     string         `json:"sourceImage"`
	Prompt          string         `json:"prompt"`
	Model           string         `json:"model"`
	Params          map[string]any `json:"params"`
	ReferenceImages []string       `json:"referenceImages"`
}

// GenerateKey derives a stable cache key from p. The reference image order
// does not affect the key.
func GenerateKey(p KeyParams) string {
	refs := slices.Clone(p.ReferenceImages)
	if refs == nil {
		refs = []string{}
	}
	slices.Sort(refs)
	params := p.Params
	if params == nil {
		params = map[string]any{}
	}

	data, err := json.Marshal(canonicalKey{
		SourceImage:     p.SourceImage,
		Prompt:          p.Prompt,
		Model:           p.Model,
		Params:          params,
		ReferenceImages: refs,
	})
	if err != nil {
		// Params that cannot be encoded (channels, funcs) are left out of the key.
		data = []byte(p.SourceImage + "\x00" + p.Prompt + "\x00" + p.Model + "\x00" + strings.Join(refs, "\x00"))
	}

	sum := sha256.Sum256(data)
	encoded := strings.Map(func(r rune) rune {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return -1
	}, base64.StdEncoding.EncodeToString(sum[:]))
	if len(encoded) > KeyLength {
		encoded = encoded[:KeyLength]
	}
	return encoded
}
