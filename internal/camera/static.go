package camera

import (
	"context"
	"errors"
	"image"
	"sync"
)

// StaticCamera always returns the same picture.
type StaticCamera struct {
	name string
	mu   sync.RWMutex
	img  image.Image
}

// NewStaticCamera creates a camera serving img.
func NewStaticCamera(name string, img image.Image) *StaticCamera {
	return &StaticCamera{name: name, img: img}
}

// Name returns the camera name.
func (c *StaticCamera) Name() string { return c.name }

// SetImage swaps the served picture.
func (c *StaticCamera) SetImage(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img = img
}

// Image encodes the current picture. Lossless types are honored; any other
// request is served as PNG.
func (c *StaticCamera) Image(ctx context.Context, mimeType string) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	c.mu.RLock()
	img := c.img
	c.mu.RUnlock()
	if img == nil {
		return Image{}, errors.New("no image")
	}
	return encodeFrame(img, mimeType)
}

// Close is a no-op.
func (c *StaticCamera) Close(context.Context) error { return nil }
