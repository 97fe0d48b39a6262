package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileCamera serves frames from an image file, or cycles through the images
// of a directory one frame per call.
type FileCamera struct {
	name  string
	mu    sync.Mutex
	files []string
	next  int
}

// NewFileCamera creates a camera over path, which may be a file or a directory.
func NewFileCamera(name, path string) (*FileCamera, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("camera %s: %w", name, err)
	}
	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", name, err)
		}
		for _, e := range entries {
			if e.IsDir() || !IsSupportedImage(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(path, e.Name()))
		}
		sort.Strings(files)
	} else {
		if !IsSupportedImage(path) {
			return nil, fmt.Errorf("camera %s: unsupported image format: %s", name, filepath.Ext(path))
		}
		files = []string{path}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("camera %s: no images in %s", name, path)
	}
	return &FileCamera{name: name, files: files}, nil
}

// Name returns the camera name.
func (c *FileCamera) Name() string { return c.name }

// Files returns the frames served by the camera, in order.
func (c *FileCamera) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}

// Image reads the next frame. PNG and BMP files are never downgraded to JPEG.
func (c *FileCamera) Image(ctx context.Context, mimeType string) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	c.mu.Lock()
	if len(c.files) == 0 {
		c.mu.Unlock()
		return Image{}, errors.New("camera closed")
	}
	path := c.files[c.next%len(c.files)]
	c.next = (c.next + 1) % len(c.files)
	c.mu.Unlock()

	data, err := os.ReadFile(path) //nolint:gosec // G304: configured camera path
	if err != nil {
		return Image{}, &ImageError{Operation: "read", Err: err}
	}
	return transcode(Image{Data: data, MimeType: MimeTypeForPath(path)}, mimeType)
}

// Close releases the file list.
func (c *FileCamera) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = nil
	return nil
}
