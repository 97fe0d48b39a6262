package barcode

import (
	"context"
	"image"
)

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatCode128
	FormatCode39
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means QR only.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool

	// Multi enables multi-symbol detection in a single image.
	Multi bool

	// ROI optionally restricts decoding to a sub-rectangle of the image.
	// If zero-sized or out of bounds, it is ignored.
	ROI image.Rectangle
}

// DefaultOptions searches for any number of QR symbols.
func DefaultOptions() Options {
	return Options{Formats: []Format{FormatQR}, Multi: true}
}

// Point is an integer point in image coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Result represents a decoded barcode.
type Result struct {
	Type       Format          `json:"type"`
	Value      string          `json:"value"`
	Points     []Point         `json:"points,omitempty"` // finder/corner points reported by the decoder
	BBox       image.Rectangle `json:"bbox"`             // symbol extent, in decoded-image coordinates
	Confidence float64         `json:"confidence"`       // -1 when the backend has no calibrated score
}

// Backend is a pluggable barcode decoder implementation.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

// NewBackend returns the default gozxing-backed implementation.
func NewBackend() Backend { return &gozxingBackend{} }
