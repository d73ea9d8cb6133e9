package mask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Format is an export encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat maps a file extension or format name to a Format, defaulting to PNG.
func ParseFormat(s string) Format {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "jpg", "jpeg":
		return FormatJPEG
	default:
		return FormatPNG
	}
}

// Export encodes the mask as a grayscale image, white where selected.
func (e *Editor) Export(w io.Writer, format Format) error {
	if !e.Loaded() {
		return ErrNotLoaded
	}
	gray := &image.Gray{
		Pix:    make([]byte, len(e.mask.Pix)),
		Stride: e.mask.Stride,
		Rect:   e.mask.Rect,
	}
	copy(gray.Pix, e.mask.Pix)

	switch format {
	case FormatPNG, "":
		if err := png.Encode(w, gray); err != nil {
			return fmt.Errorf("encode png mask: %w", err)
		}
	case FormatJPEG:
		if err := jpeg.Encode(w, gray, &jpeg.Options{Quality: 95}); err != nil {
			return fmt.Errorf("encode jpeg mask: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return nil
}

// Import replaces the mask with a decoded image stretched to the canvas and
// records a snapshot. Each pixel becomes its luminance scaled by its alpha.
// On a decode failure the mask and its history are left untouched.
func (e *Editor) Import(r io.Reader) error {
	if !e.Loaded() {
		return ErrNotLoaded
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read mask: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	canvas := e.mask.Bounds()
	fitted := image.NewNRGBA(canvas)
	if img.Bounds().Size() == canvas.Size() {
		draw.Draw(fitted, canvas, img, img.Bounds().Min, draw.Src)
	} else {
		draw.BiLinear.Scale(fitted, canvas, img, img.Bounds(), draw.Src, nil)
	}

	e.EndStroke()
	for i := range e.mask.Pix {
		p := fitted.Pix[i*4 : i*4+4]
		e.mask.Pix[i] = luminanceAlpha(color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]})
	}
	e.push()
	return nil
}

func luminanceAlpha(c color.NRGBA) uint8 {
	lum := (299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B) + 500) / 1000
	return uint8((lum*uint32(c.A) + 127) / 255)
}
