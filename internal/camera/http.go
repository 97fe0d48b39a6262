package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a snapshot request.
const DefaultHTTPTimeout = 10 * time.Second

// maxSnapshotBytes caps the size of a snapshot body.
const maxSnapshotBytes = 32 << 20

// HTTPCamera fetches a snapshot from a URL on every call, e.g. the JPEG
// snapshot endpoint of an IP camera.
type HTTPCamera struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPCamera creates a snapshot camera. A nil client gets one with
// DefaultHTTPTimeout.
func NewHTTPCamera(name, url string, client *http.Client) *HTTPCamera {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPCamera{name: name, url: url, client: client}
}

// Name returns the camera name.
func (c *HTTPCamera) Name() string { return c.name }

// URL returns the snapshot URL.
func (c *HTTPCamera) URL() string { return c.url }

// Image downloads one snapshot.
func (c *HTTPCamera) Image(ctx context.Context, mimeType string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Image{}, fmt.Errorf("camera %s: %w", c.name, err)
	}
	if mimeType != "" {
		req.Header.Set("Accept", mimeType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("camera %s: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("camera %s: unexpected status %d", c.name, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return Image{}, &ImageError{Operation: "read", Err: err}
	}
	mt := normalizeMime(resp.Header.Get("Content-Type"))
	if mt == "" || mt == "application/octet-stream" {
		mt = normalizeMime(http.DetectContentType(data))
	}
	return transcode(Image{Data: data, MimeType: mt}, mimeType)
}

// Close releases idle connections.
func (c *HTTPCamera) Close(context.Context) error {
	c.client.CloseIdleConnections()
	return nil
}
