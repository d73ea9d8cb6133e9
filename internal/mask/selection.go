package mask

import (
	"fmt"
	"math"
)

// SelectionMode picks a quick-selection algorithm.
type SelectionMode string

const (
	// SelectEdges selects pixels on strong luminance edges of the source photo.
	SelectEdges SelectionMode = "edges"
	// SelectAll selects the whole canvas.
	SelectAll SelectionMode = "all"
)

// EdgeThreshold is the gradient magnitude above which a pixel counts as an edge.
const EdgeThreshold = 30.0

// ApplyQuickSelection adds an automatic selection to the mask and records a snapshot.
// Pixels outside the selection keep their current value.
func (e *Editor) ApplyQuickSelection(mode SelectionMode) error {
	if !e.Loaded() {
		return ErrNotLoaded
	}
	switch mode {
	case SelectEdges:
		e.EndStroke()
		e.selectEdges()
	case SelectAll:
		e.EndStroke()
		for i := range e.mask.Pix {
			e.mask.Pix[i] = 255
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSelection, mode)
	}
	e.push()
	return nil
}

func (e *Editor) selectEdges() {
	b := e.src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return
	}

	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := e.src.Pix[e.src.PixOffset(x, y):]
			lum[y*w+x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := lum[y*w+x+1] - lum[y*w+x-1]
			gy := lum[(y+1)*w+x] - lum[(y-1)*w+x]
			if math.Sqrt(gx*gx+gy*gy) > EdgeThreshold {
				e.mask.Pix[e.mask.PixOffset(x, y)] = 255
			}
		}
	}
}
