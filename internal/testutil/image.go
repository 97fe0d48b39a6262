// Package testutil builds synthetic fixtures for tests: QR symbols placed at
// known locations, blank frames, and their encoded file forms.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
)

// QRConfig describes a synthetic frame containing one QR symbol.
type QRConfig struct {
	Payload string
	// Size is the edge length of the rendered symbol including its quiet zone.
	Size int
	// Canvas is the frame size; the symbol is pasted at Offset.
	Canvas image.Point
	Offset image.Point
}

// DefaultQRConfig places a 200px symbol at (60,40) in a 320x280 white frame.
func DefaultQRConfig(payload string) QRConfig {
	return QRConfig{
		Payload: payload,
		Size:    200,
		Canvas:  image.Pt(320, 280),
		Offset:  image.Pt(60, 40),
	}
}

// QRSymbol renders payload as a black-on-white QR symbol of size x size pixels.
func QRSymbol(t *testing.T, payload string, size int) *image.RGBA {
	t.Helper()

	img, err := RenderQRSymbol(payload, size)
	require.NoError(t, err, "failed to encode QR payload %q", payload)
	return img
}

// RenderQRSymbol is QRSymbol for callers without a *testing.T.
func RenderQRSymbol(payload string, size int) (*image.RGBA, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, err
	}

	w, h := matrix.GetWidth(), matrix.GetHeight()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if matrix.Get(x, y) {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img, nil
}

// QRFrame renders a full frame per cfg and returns it with the symbol's placement.
func QRFrame(t *testing.T, cfg QRConfig) (*image.RGBA, image.Rectangle) {
	t.Helper()

	frame, placed, err := RenderQRFrame(cfg)
	require.NoError(t, err, "failed to render QR frame")
	return frame, placed
}

// RenderQRFrame is QRFrame for callers without a *testing.T.
func RenderQRFrame(cfg QRConfig) (*image.RGBA, image.Rectangle, error) {
	symbol, err := RenderQRSymbol(cfg.Payload, cfg.Size)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	frame := BlankFrame(cfg.Canvas.X, cfg.Canvas.Y, color.White)
	placed := symbol.Bounds().Add(cfg.Offset)
	draw.Draw(frame, placed, symbol, image.Point{}, draw.Src)
	return frame, placed, nil
}

// BlankFrame returns a uniformly filled RGBA image.
func BlankFrame(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// EncodePNG returns img as PNG bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeJPEG returns img as high quality JPEG bytes.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// SaveImage writes img as PNG to path, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, WritePNG(path, img))
}

// WritePNG writes img as PNG to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// DarkBounds returns the smallest rectangle holding every pixel darker than
// mid-gray. For a rendered QR frame this is the symbol without its quiet zone.
func DarkBounds(img image.Image) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y >= 128 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if r.Empty() {
				r = px
			} else {
				r = r.Union(px)
			}
		}
	}
	return r
}
