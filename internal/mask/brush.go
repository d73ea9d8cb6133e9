package mask

import "math"

// Mode selects how the brush combines with the existing mask.
type Mode int

const (
	// ModeDraw adds coverage (source-over).
	ModeDraw Mode = iota
	// ModeErase removes coverage (destination-out).
	ModeErase
)

func (m Mode) String() string {
	if m == ModeErase {
		return "erase"
	}
	return "draw"
}

// ParseMode maps "draw"/"erase" to a Mode. Anything else is ModeDraw.
func ParseMode(s string) Mode {
	if s == "erase" {
		return ModeErase
	}
	return ModeDraw
}

// Brush holds the footprint parameters.
type Brush struct {
	// Size is the diameter in pixels.
	Size float64 `json:"size"`
	// Opacity scales the strength of every dab, 0..1.
	Opacity float64 `json:"opacity"`
	// Hardness is the fraction of the radius painted at full strength, 0..1.
	Hardness float64 `json:"hardness"`
	// Feather extends the soft edge this many pixels beyond the radius.
	Feather float64 `json:"feather"`
	Mode    Mode    `json:"mode"`
}

// DefaultBrush matches the editor's initial UI settings.
func DefaultBrush() Brush {
	return Brush{Size: 40, Opacity: 0.8, Hardness: 0.7}
}

func (b Brush) clamped() Brush {
	b.Size = clampFloat(b.Size, 1, 500)
	b.Opacity = clampFloat(b.Opacity, 0, 1)
	b.Hardness = clampFloat(b.Hardness, 0, 1)
	b.Feather = clampFloat(b.Feather, 0, 100)
	return b
}

// coverage returns the footprint weight at distance d from the centre.
func (b Brush) coverage(d float64) float64 {
	r := b.Size / 2
	core := r * b.Hardness
	outer := r + b.Feather
	switch {
	case d <= core:
		return 1
	case d >= outer:
		return 0
	default:
		return (outer - d) / (outer - core)
	}
}

// stamp composites one brush dab centred at (cx, cy).
func (e *Editor) stamp(cx, cy float64) {
	b := e.brush
	outer := b.Size/2 + b.Feather
	bounds := e.mask.Bounds()

	x0 := max(bounds.Min.X, int(math.Floor(cx-outer)))
	x1 := min(bounds.Max.X-1, int(math.Ceil(cx+outer)))
	y0 := max(bounds.Min.Y, int(math.Floor(cy-outer)))
	y1 := min(bounds.Max.Y-1, int(math.Ceil(cy+outer)))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			cov := b.coverage(d)
			if cov <= 0 {
				continue
			}
			s := cov * b.Opacity * 255
			i := e.mask.PixOffset(x, y)
			a := float64(e.mask.Pix[i])
			if b.Mode == ModeErase {
				a *= 1 - s/255
			} else {
				a += s * (255 - a) / 255
			}
			e.mask.Pix[i] = uint8(math.Round(clampFloat(a, 0, 255)))
		}
	}
}

// stampSegment stamps dabs from (x0, y0) exclusive to (x1, y1) inclusive,
// spaced a quarter radius apart.
func (e *Editor) stampSegment(x0, y0, x1, y1 float64) {
	dx, dy := x1-x0, y1-y0
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return
	}
	spacing := math.Max(1, e.brush.Size/8)
	n := int(math.Ceil(dist / spacing))
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		e.stamp(x0+dx*t, y0+dy*t)
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
