package robot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/MeKo-Tech/qrvision/internal/camera"
)

// maxFrameBytes bounds a single camera frame.
const maxFrameBytes = 64 << 20

// Camera is a remote camera. It satisfies camera.Camera.
type Camera struct {
	client *Client
	name   string
}

var _ camera.Camera = (*Camera)(nil)

// Name returns the camera name.
func (c *Camera) Name() string { return c.name }

// Image fetches one frame encoded as mimeType.
func (c *Camera) Image(ctx context.Context, mimeType string) (camera.Image, error) {
	q := url.Values{}
	if mimeType != "" {
		q.Set("mime_type", mimeType)
	}
	resp, err := c.client.send(ctx, "camera image", http.MethodGet,
		"/api/v1/camera/"+url.PathEscape(c.name)+"/image", q, nil, "")
	if err != nil {
		return camera.Image{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return camera.Image{}, fmt.Errorf("robot: read frame from %s: %w", c.name, err)
	}
	mt := resp.Header.Get("Content-Type")
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	return camera.Image{Data: data, MimeType: mt}, nil
}

// Close is a no-op. The remote camera is owned by its host.
func (c *Camera) Close(context.Context) error { return nil }
