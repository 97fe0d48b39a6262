package detection

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OverlayOptions controls how detections are drawn.
type OverlayOptions struct {
	BoxColor   color.Color
	LabelColor color.Color
	Thickness  int
	Labels     bool
}

// DefaultOverlayOptions draws green boxes with the payload above each box.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		BoxColor:   color.RGBA{G: 255, A: 255},
		LabelColor: color.RGBA{G: 255, A: 255},
		Thickness:  2,
		Labels:     true,
	}
}

// RenderOverlay returns an RGBA copy of img with the detections drawn on it.
// The copy is anchored at (0,0); detection coordinates are relative to the
// original image origin.
func RenderOverlay(img image.Image, dets []Detection, opts OverlayOptions) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	if opts.BoxColor == nil {
		opts.BoxColor = color.RGBA{G: 255, A: 255}
	}
	if opts.LabelColor == nil {
		opts.LabelColor = opts.BoxColor
	}
	for _, d := range dets {
		DrawRect(dst, d.Rect(), opts.BoxColor, opts.Thickness)
		if opts.Labels && d.Label != "" {
			drawLabel(dst, d, opts.LabelColor)
		}
	}
	return dst
}

// DrawRect draws an axis-aligned rectangle outline into dst.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Canon().Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := range thickness {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	for t := range thickness {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}

// drawLabel writes the payload just above the box, or inside it when the box
// touches the top edge.
func drawLabel(dst *image.RGBA, d Detection, col color.Color) {
	face := basicfont.Face7x13
	baseline := d.YMin - 4
	if baseline-face.Ascent < dst.Bounds().Min.Y {
		baseline = d.YMin + face.Ascent + 2
	}
	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(d.XMin, baseline),
	}
	drawer.DrawString(d.Label)
}

// ParseHexColor parses colors like "#RRGGBB" or "RRGGBB".
// It returns nil for anything else.
func ParseHexColor(s string) color.Color {
	if s == "" {
		return nil
	}
	if s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return nil
	}
	var rv, gv, bv int
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &rv, &gv, &bv); err != nil {
		return nil
	}
	return color.RGBA{uint8(rv), uint8(gv), uint8(bv), 255} //nolint:gosec // G115: two hex digits fit in uint8
}
