// Package camera provides frame sources that vision services pull images from.
package camera

import (
	"context"
)

// Camera is a named frame source.
type Camera interface {
	Name() string
	// Image returns one encoded frame. mimeType is a hint; implementations
	// transcode when they can and otherwise return their native encoding.
	Image(ctx context.Context, mimeType string) (Image, error)
	Close(ctx context.Context) error
}

// Image is an encoded frame.
type Image struct {
	Data     []byte
	MimeType string
}
