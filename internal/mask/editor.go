// Package mask implements the raster mask editor used to select regions of a
// kitchen photo for inpainting. The mask is a single-channel alpha buffer the
// same size as the source photo: 255 marks a pixel for editing, 0 keeps it.
//
// An Editor is owned by one caller and is not safe for concurrent use.
package mask

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"time"
)

// DefaultMaxHistory is the number of mask snapshots retained for undo.
const DefaultMaxHistory = 50

var (
	// ErrNotLoaded is returned by operations invoked before a source image is set.
	ErrNotLoaded = errors.New("mask: source image not loaded")

	// ErrDecode is returned when an imported mask file cannot be decoded as an image.
	ErrDecode = errors.New("mask: cannot decode image")

	// ErrUnknownSelection is returned for an unsupported quick-selection mode.
	ErrUnknownSelection = errors.New("mask: unknown selection mode")

	// ErrUnknownFormat is returned for an unsupported export format.
	ErrUnknownFormat = errors.New("mask: unknown export format")
)

// overlayColor is the tint used when the mask is drawn over the photo.
var overlayColor = color.NRGBA{R: 255, A: 255}

// Editor paints a soft-edged alpha mask over a source image.
type Editor struct {
	src     *image.RGBA
	mask    *image.Alpha
	brush   Brush
	history *snapshotStack
	now     func() time.Time

	stroking     bool
	lastX, lastY float64
}

// Option configures an Editor.
type Option func(*Editor)

// WithMaxHistory overrides the number of retained snapshots (minimum 1).
func WithMaxHistory(n int) Option {
	return func(e *Editor) {
		if n < 1 {
			n = 1
		}
		e.history.max = n
	}
}

// WithBrush sets the initial brush.
func WithBrush(b Brush) Option {
	return func(e *Editor) {
		e.brush = b.clamped()
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) {
		e.now = now
	}
}

// NewEditor creates an editor for src with an empty mask of the same size.
// A nil src yields an unloaded editor on which every operation is a no-op.
func NewEditor(src image.Image, opts ...Option) *Editor {
	e := &Editor{
		brush:   DefaultBrush(),
		history: &snapshotStack{max: DefaultMaxHistory, index: -1},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if src == nil {
		return e
	}

	b := src.Bounds()
	e.src = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(e.src, e.src.Bounds(), src, b.Min, draw.Src)
	e.mask = image.NewAlpha(e.src.Bounds())
	e.push()
	return e
}

// Loaded reports whether the editor has a source image.
func (e *Editor) Loaded() bool {
	return e.mask != nil
}

// Bounds returns the canvas rectangle, empty when unloaded.
func (e *Editor) Bounds() image.Rectangle {
	if !e.Loaded() {
		return image.Rectangle{}
	}
	return e.mask.Bounds()
}

// Brush returns the current brush settings.
func (e *Editor) Brush() Brush {
	return e.brush
}

// SetBrush replaces the brush, clamping each value to its valid range.
func (e *Editor) SetBrush(b Brush) {
	e.brush = b.clamped()
}

// Draw stamps the brush at (x, y). When isNewStroke is false the footprint is
// also stamped along the segment from the previous point of the stroke.
// Starting a new stroke commits the active one as its own snapshot.
func (e *Editor) Draw(x, y float64, isNewStroke bool) {
	if !e.Loaded() {
		return
	}
	if isNewStroke && e.stroking {
		e.push()
	}
	if isNewStroke || !e.stroking {
		e.stroking = true
		e.stamp(x, y)
		e.lastX, e.lastY = x, y
		return
	}
	e.stampSegment(e.lastX, e.lastY, x, y)
	e.lastX, e.lastY = x, y
}

// EndStroke finishes the active stroke and records it in the history.
func (e *Editor) EndStroke() {
	if !e.Loaded() || !e.stroking {
		return
	}
	e.stroking = false
	e.push()
}

// Undo restores the previous snapshot, committing any active stroke first.
// It returns false at the oldest snapshot.
func (e *Editor) Undo() bool {
	if !e.Loaded() {
		return false
	}
	e.EndStroke()
	snap, ok := e.history.undo()
	if !ok {
		return false
	}
	copy(e.mask.Pix, snap.Pix)
	return true
}

// Redo re-applies the next snapshot. It returns false when nothing was undone.
func (e *Editor) Redo() bool {
	if !e.Loaded() {
		return false
	}
	e.EndStroke()
	snap, ok := e.history.redo()
	if !ok {
		return false
	}
	copy(e.mask.Pix, snap.Pix)
	return true
}

// Clear makes the whole mask transparent.
func (e *Editor) Clear() {
	if !e.Loaded() {
		return
	}
	e.EndStroke()
	clear(e.mask.Pix)
	e.push()
}

// Invert flips every pixel: selected becomes unselected and vice versa.
func (e *Editor) Invert() {
	if !e.Loaded() {
		return
	}
	e.EndStroke()
	for i, a := range e.mask.Pix {
		e.mask.Pix[i] = 255 - a
	}
	e.push()
}

// Complete returns a copy of the current mask. The editor is not modified.
func (e *Editor) Complete() *image.Alpha {
	if !e.Loaded() {
		return nil
	}
	out := image.NewAlpha(e.mask.Bounds())
	copy(out.Pix, e.mask.Pix)
	return out
}

// ExportRGBA returns the mask rendered as a red layer whose alpha is the mask value.
func (e *Editor) ExportRGBA() *image.NRGBA {
	if !e.Loaded() {
		return nil
	}
	out := image.NewNRGBA(e.mask.Bounds())
	for i, a := range e.mask.Pix {
		p := out.Pix[i*4 : i*4+4]
		p[0], p[1], p[2], p[3] = overlayColor.R, overlayColor.G, overlayColor.B, a
	}
	return out
}

// Preview returns the source photo with the mask overlay composited at half strength.
func (e *Editor) Preview() *image.RGBA {
	if !e.Loaded() {
		return nil
	}
	out := image.NewRGBA(e.src.Bounds())
	copy(out.Pix, e.src.Pix)
	tint := image.NewUniform(color.NRGBA{R: overlayColor.R, A: 128})
	draw.DrawMask(out, out.Bounds(), tint, image.Point{}, e.mask, image.Point{}, draw.Over)
	return out
}

// Coverage returns the fraction of pixels with a non-zero mask value.
func (e *Editor) Coverage() float64 {
	if !e.Loaded() || len(e.mask.Pix) == 0 {
		return 0
	}
	n := 0
	for _, a := range e.mask.Pix {
		if a > 0 {
			n++
		}
	}
	return float64(n) / float64(len(e.mask.Pix))
}

// HistoryInfo describes the undo stack position.
type HistoryInfo struct {
	Index   int  `json:"index"`
	Len     int  `json:"len"`
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// Stats reports the snapshot cursor and stack size.
func (e *Editor) Stats() HistoryInfo {
	h := e.history
	return HistoryInfo{
		Index:   h.index,
		Len:     len(h.items),
		CanUndo: h.index > 0,
		CanRedo: h.index >= 0 && h.index < len(h.items)-1,
	}
}

// push records the current mask as a new snapshot.
func (e *Editor) push() {
	pix := make([]byte, len(e.mask.Pix))
	copy(pix, e.mask.Pix)
	e.history.push(Snapshot{Pix: pix, Taken: e.now()})
}
