package detection

import "image"

// Rescaler maps boxes found in a preprocessed (resized) image back into the
// coordinate space of the original frame.
type Rescaler struct {
	// Clamp intersects rescaled boxes with the original image bounds.
	Clamp bool
}

// Rescale converts box from processed-image coordinates into original-image
// coordinates. The box origin and extent are scaled independently and
// truncated, so the result is (x, y, x+w, y+h) of the scaled values.
// A degenerate processed size leaves the box unchanged.
func (r Rescaler) Rescale(box image.Rectangle, orig, proc image.Point) image.Rectangle {
	if proc.X <= 0 || proc.Y <= 0 {
		return box
	}
	scaleX := float64(orig.X) / float64(proc.X)
	scaleY := float64(orig.Y) / float64(proc.Y)

	x := int(float64(box.Min.X) * scaleX)
	y := int(float64(box.Min.Y) * scaleY)
	w := int(float64(box.Dx()) * scaleX)
	h := int(float64(box.Dy()) * scaleY)

	out := image.Rect(x, y, x+w, y+h)
	if r.Clamp {
		out = out.Intersect(image.Rect(0, 0, orig.X, orig.Y))
	}
	return out
}

// Size returns the width and height of b as a point.
func Size(b image.Rectangle) image.Point {
	return image.Pt(b.Dx(), b.Dy())
}
