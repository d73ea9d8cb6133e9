package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultMaxDimension is the longest side sent to the image model.
const DefaultMaxDimension = 2048

// FitDimensions scales width and height so the longer side is at most
// maxDimension, preserving the aspect ratio. Sizes already within the limit
// are returned unchanged.
func FitDimensions(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}
	if width >= height {
		return maxDimension, max(1, height*maxDimension/width)
	}
	return max(1, width*maxDimension/height), maxDimension
}

// Fit downscales img with Catmull-Rom resampling so it fits maxDimension.
func Fit(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	w, h := FitDimensions(b.Dx(), b.Dy(), maxDimension)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Over, nil)
	return resized
}

// Normalize returns data unchanged when it already fits maxDimension.
// Larger photos are downscaled and re-encoded: PNG stays PNG, everything
// else becomes JPEG.
func Normalize(data []byte, maxDimension int) ([]byte, string, error) {
	img, mime, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	b := img.Bounds()
	fitted := Fit(img, maxDimension)
	if fitted == img {
		return data, mime, nil
	}

	var buf bytes.Buffer
	outMIME := "image/jpeg"
	if mime == "image/png" {
		outMIME = "image/png"
		err = png.Encode(&buf, fitted)
	} else {
		err = jpeg.Encode(&buf, fitted, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode resized image: %w", err)
	}

	log.Debug().
		Int("orig_width", b.Dx()).
		Int("orig_height", b.Dy()).
		Int("new_width", fitted.Bounds().Dx()).
		Int("new_height", fitted.Bounds().Dy()).
		Int("output_size", buf.Len()).
		Msg("Source image downscaled")
	return buf.Bytes(), outMIME, nil
}
