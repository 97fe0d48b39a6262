// Package vision implements the QR-code vision service: it pulls frames
// from cameras, decodes QR symbols, reports them as detections and opens
// URL payloads.
package vision

import (
	"context"
	"errors"
	"image"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/detection"
)

// ErrNoCommand is returned when a command payload is missing or not an object.
var ErrNoCommand = errors.New("no command given")

// Properties advertises what a vision service supports.
type Properties struct {
	ClassificationSupported bool `json:"classifications_supported"`
	DetectionSupported      bool `json:"detections_supported"`
	ObjectPCDsSupported     bool `json:"object_point_clouds_supported"`
}

// Classification is a whole-image label.
type Classification struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// PointCloudObject is a segmented 3D object.
type PointCloudObject struct {
	Label  string       `json:"label"`
	Points [][3]float64 `json:"points"`
}

// CaptureOptions selects what CaptureAllFromCamera returns.
type CaptureOptions struct {
	ReturnImage             bool `json:"return_image"`
	ReturnClassifications   bool `json:"return_classifications"`
	ReturnDetections        bool `json:"return_detections"`
	ReturnObjectPointClouds bool `json:"return_object_point_clouds"`
}

// CaptureAllResult bundles one frame with what was computed from it.
type CaptureAllResult struct {
	Image           *camera.Image         `json:"image,omitempty"`
	Detections      []detection.Detection `json:"detections,omitempty"`
	Classifications []Classification      `json:"classifications,omitempty"`
	Objects         []PointCloudObject    `json:"objects,omitempty"`
	Extra           map[string]any        `json:"extra,omitempty"`
}

// Service is the vision resource contract.
type Service interface {
	Name() string
	DetectionsFromCamera(ctx context.Context, cameraName string, extra map[string]any) ([]detection.Detection, error)
	Detections(ctx context.Context, img image.Image, extra map[string]any) ([]detection.Detection, error)
	Classifications(ctx context.Context, img image.Image, n int, extra map[string]any) ([]Classification, error)
	ClassificationsFromCamera(ctx context.Context, cameraName string, n int, extra map[string]any) ([]Classification, error)
	ObjectPointClouds(ctx context.Context, cameraName string, extra map[string]any) ([]PointCloudObject, error)
	CaptureAllFromCamera(ctx context.Context, cameraName string, opts CaptureOptions, extra map[string]any) (*CaptureAllResult, error)
	Properties(ctx context.Context, extra map[string]any) (Properties, error)
	DoCommand(ctx context.Context, cmd map[string]any) (map[string]any, error)
	Reconfigure(ctx context.Context, deps Dependencies, conf ResourceConfig) error
	Close(ctx context.Context) error
}
