package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidRGBA(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.Equalize)
	assert.Equal(t, uint8(128), opts.Threshold)
	assert.InDelta(t, 1.5, opts.Scale, 1e-9)
}

func TestToGray_UsesLuma(t *testing.T) {
	img := solidRGBA(2, 2, color.RGBA{R: 255, A: 255})
	gray := ToGray(img)

	require.Equal(t, image.Rect(0, 0, 2, 2), gray.Bounds())
	// 0.299 * 255 ~= 76
	assert.InDelta(t, 76, int(gray.GrayAt(0, 0).Y), 1)
}

func TestToGray_RebasesBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 20, 14, 23))
	gray := ToGray(img)
	assert.Equal(t, image.Rect(0, 0, 4, 3), gray.Bounds())
}

func TestEqualizeHist_StretchesRange(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 1))
	gray.Pix = []uint8{100, 100, 110, 120}

	EqualizeHist(gray)

	assert.Equal(t, uint8(0), gray.Pix[0])
	assert.Equal(t, uint8(0), gray.Pix[1])
	assert.Equal(t, uint8(128), gray.Pix[2])
	assert.Equal(t, uint8(255), gray.Pix[3])
}

func TestEqualizeHist_SingleLevelUnchanged(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range gray.Pix {
		gray.Pix[i] = 77
	}

	EqualizeHist(gray)

	for _, v := range gray.Pix {
		assert.Equal(t, uint8(77), v)
	}
}

func TestEqualizeHist_Empty(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 0, 0))
	assert.NotPanics(t, func() { EqualizeHist(gray) })
}

func TestThreshold(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 1))
	gray.Pix = []uint8{0, 128, 129, 255}

	Threshold(gray, 128)

	assert.Equal(t, []uint8{0, 0, 255, 255}, gray.Pix)
}

func TestResize(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		factor float64
		wantW  int
		wantH  int
	}{
		{"upscale 1.5", 100, 60, 1.5, 150, 90},
		{"identity", 10, 10, 1.0, 10, 10},
		{"disabled", 10, 10, 0, 10, 10},
		{"odd dims truncate", 11, 7, 1.5, 16, 10},
		{"downscale floor to one", 1, 1, 0.1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gray := image.NewGray(image.Rect(0, 0, tt.w, tt.h))
			out := Resize(gray, tt.factor)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}

func TestProcess_OutputIsBinaryAndScaled(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := range 20 {
		for x := range 40 {
			v := uint8(x * 6)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	out := Process(img, Options{Equalize: true, Threshold: 128, Scale: 1})

	require.Equal(t, image.Rect(0, 0, 40, 20), out.Bounds())
	for _, v := range out.Pix {
		assert.True(t, v == 0 || v == 255, "pixel %d not binary", v)
	}

	scaled := Process(img, DefaultOptions())
	assert.Equal(t, image.Rect(0, 0, 60, 30), scaled.Bounds())
}

func TestProcess_NilImage(t *testing.T) {
	out := Process(nil, DefaultOptions())
	require.NotNil(t, out)
	assert.True(t, out.Bounds().Empty())
}
