// Package preprocess prepares camera frames for barcode decoding.
//
// The pipeline mirrors what helps small QR symbols survive uneven lighting:
// intensity conversion, global histogram equalization, a fixed binary
// threshold and a linear upscale.
package preprocess

import (
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// DefaultThreshold is the binarization cutoff.
	DefaultThreshold uint8 = 128
	// DefaultScale is the upsampling factor applied on both axes.
	DefaultScale = 1.5
)

// Options controls the preprocessing steps.
type Options struct {
	// Equalize enables global histogram equalization.
	Equalize bool
	// Threshold is the binary cutoff; pixels strictly above it become white.
	Threshold uint8
	// Scale resizes the binarized image on both axes. Values <= 0 disable resizing.
	Scale float64
}

// DefaultOptions returns the standard pipeline: equalize, threshold at 128, upscale 1.5x.
func DefaultOptions() Options {
	return Options{
		Equalize:  true,
		Threshold: DefaultThreshold,
		Scale:     DefaultScale,
	}
}

// Process runs the full pipeline and returns a single-channel image of size
// (Scale*W, Scale*H) anchored at the origin.
func Process(img image.Image, opts Options) *image.Gray {
	if img == nil {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	gray := ToGray(img)
	if opts.Equalize {
		EqualizeHist(gray)
	}
	Threshold(gray, opts.Threshold)
	return Resize(gray, opts.Scale)
}

// ToGray converts img into a new grayscale image with bounds starting at (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// EqualizeHist applies global histogram equalization in place.
// The lookup table is built from the cumulative histogram normalized by the
// first populated bin, so the darkest level maps to 0 and the brightest to 255.
// A single-level image is left unchanged.
func EqualizeHist(img *image.Gray) {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y) : img.PixOffset(b.Min.X, y)+b.Dx()]
		for _, v := range row {
			hist[v]++
		}
	}

	first := 0
	for first < 256 && hist[first] == 0 {
		first++
	}
	if hist[first] == total {
		return
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		lut[i] = clampUint8(math.Round(float64(sum) * scale))
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y) : img.PixOffset(b.Min.X, y)+b.Dx()]
		for i, v := range row {
			row[i] = lut[v]
		}
	}
}

// Threshold binarizes img in place: values above cutoff become 255, all others 0.
func Threshold(img *image.Gray, cutoff uint8) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y) : img.PixOffset(b.Min.X, y)+b.Dx()]
		for i, v := range row {
			if v > cutoff {
				row[i] = 255
			} else {
				row[i] = 0
			}
		}
	}
}

// Resize scales img by factor on both axes using linear interpolation.
// A factor <= 0 or exactly 1 returns img untouched.
func Resize(img *image.Gray, factor float64) *image.Gray {
	if factor <= 0 || factor == 1 {
		return img
	}
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), factor)
	if b.Dx() == 0 || b.Dy() == 0 {
		return image.NewGray(image.Rect(0, 0, w, h))
	}
	resized := imaging.Resize(img, w, h, imaging.Linear)
	return ToGray(resized)
}

// ScaledSize returns the output dimensions for a resize by factor.
func ScaledSize(w, h int, factor float64) (int, int) {
	if factor <= 0 {
		return w, h
	}
	sw := int(float64(w) * factor)
	sh := int(float64(h) * factor)
	if w > 0 && sw < 1 {
		sw = 1
	}
	if h > 0 && sh < 1 {
		sh = 1
	}
	return sw, sh
}

func clampUint8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
