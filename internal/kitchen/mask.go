package kitchen

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/genai-kitchen/internal/imageio"
	"github.com/fpang/genai-kitchen/internal/mask"
)

// EdgeMask runs the edge quick selection over a photo and returns the mask
// as a PNG (white = selected) with the fraction of selected pixels.
func EdgeMask(photo []byte) ([]byte, float64, error) {
	img, _, err := imageio.Decode(photo)
	if err != nil {
		return nil, 0, invalid("image", "%v", err)
	}
	ed := mask.NewEditor(img)
	if err := ed.ApplyQuickSelection(mask.SelectEdges); err != nil {
		return nil, 0, fmt.Errorf("edge selection: %w", err)
	}
	var buf bytes.Buffer
	if err := ed.Export(&buf, mask.FormatPNG); err != nil {
		return nil, 0, fmt.Errorf("export mask: %w", err)
	}
	coverage := ed.Coverage()
	log.Debug().
		Int("width", ed.Bounds().Dx()).
		Int("height", ed.Bounds().Dy()).
		Float64("coverage", coverage).
		Msg("Edge mask computed")
	return buf.Bytes(), coverage, nil
}
