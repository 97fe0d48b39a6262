package server

import (
	"log/slog"
	"time"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// ResourceProvider resolves the resources the server exposes.
type ResourceProvider interface {
	Camera(name string) (camera.Camera, error)
	Vision(name string) (vision.Service, error)
	ResourceNames() []vision.ResourceName
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	resources      ResourceProvider
	logger         *slog.Logger
	corsOrigin     string
	maxUploadMB    int64
	requestTimeout time.Duration
	dataDir        string
	apiKey         string
	apiKeyID       string
	overlayEnabled bool
	rateLimiter    *RateLimiter
	version        string
}

// Config holds server configuration.
type Config struct {
	CORSOrigin     string
	MaxUploadMB    int64
	RequestTimeout time.Duration
	// DataDir receives files posted to the upload endpoint.
	DataDir        string
	APIKey         string
	APIKeyID       string
	OverlayEnabled bool
	RateLimit      RateLimitConfig
	Version        string
	Logger         *slog.Logger
}

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	MaxDataPerDay     int64
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ResourceInfo names one resource.
type ResourceInfo struct {
	API  string `json:"api"`
	Name string `json:"name"`
}

// ResourcesResponse lists the resources of the host.
type ResourcesResponse struct {
	Success   bool           `json:"success"`
	Resources []ResourceInfo `json:"resources"`
}

// DetectionsResponse carries detections.
type DetectionsResponse struct {
	Success    bool                  `json:"success"`
	Detections []detection.Detection `json:"detections"`
}

// ClassificationsResponse carries classifications.
type ClassificationsResponse struct {
	Success         bool                    `json:"success"`
	Classifications []vision.Classification `json:"classifications"`
}

// ObjectsResponse carries point cloud objects.
type ObjectsResponse struct {
	Success bool                      `json:"success"`
	Objects []vision.PointCloudObject `json:"objects"`
}

// CaptureAllResponse carries a capture result.
type CaptureAllResponse struct {
	Success bool                     `json:"success"`
	Result  *vision.CaptureAllResult `json:"result"`
}

// PropertiesResponse carries service properties.
type PropertiesResponse struct {
	Success    bool              `json:"success"`
	Properties vision.Properties `json:"properties"`
}

// CommandResponse carries a DoCommand result.
type CommandResponse struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result"`
}

// UploadResponse describes a stored upload.
type UploadResponse struct {
	Success bool           `json:"success"`
	File    UploadMetadata `json:"file"`
}

// UploadMetadata is written next to every uploaded file.
type UploadMetadata struct {
	ID         string    `json:"id"`
	PartID     string    `json:"part_id"`
	FileName   string    `json:"file_name"`
	StoredAs   string    `json:"stored_as"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type,omitempty"`
	Tags       []string  `json:"tags"`
	UploadedAt time.Time `json:"uploaded_at"`
}
