package robot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/server"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// VisionClient is a remote vision service.
type VisionClient struct {
	client *Client
	name   string
}

// Name returns the service name.
func (v *VisionClient) Name() string { return v.name }

func (v *VisionClient) path(op string) string {
	return "/api/v1/vision/" + url.PathEscape(v.name) + "/" + op
}

// DetectionsFromCamera runs detection on a frame of cameraName. An empty
// name selects the service's configured camera.
func (v *VisionClient) DetectionsFromCamera(ctx context.Context, cameraName string) ([]detection.Detection, error) {
	q := url.Values{}
	if cameraName != "" {
		q.Set("camera", cameraName)
	}
	var resp server.DetectionsResponse
	if err := v.client.getJSON(ctx, "detections from camera", v.path("detections_from_camera"), q, &resp); err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

// Detections uploads img as PNG and runs detection on it.
func (v *VisionClient) Detections(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "frame.png")
	if err != nil {
		return nil, err
	}
	if err := png.Encode(fw, img); err != nil {
		return nil, fmt.Errorf("robot: encode image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp server.DetectionsResponse
	if err := v.client.do(ctx, "detections", http.MethodPost, v.path("detections"), nil,
		&body, mw.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

// Properties returns what the remote service supports.
func (v *VisionClient) Properties(ctx context.Context) (vision.Properties, error) {
	var resp server.PropertiesResponse
	if err := v.client.getJSON(ctx, "properties", v.path("properties"), nil, &resp); err != nil {
		return vision.Properties{}, err
	}
	return resp.Properties, nil
}
