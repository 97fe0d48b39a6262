// Package server exposes a host's cameras and vision services over HTTP and
// WebSocket, together with data upload, health and Prometheus metrics.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMaxUploadMB = 32

// NewServer creates a server over resources.
func NewServer(config Config, resources ResourceProvider) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadMB
	}
	s := &Server{
		resources:      resources,
		logger:         logger,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    maxUpload,
		requestTimeout: config.RequestTimeout,
		dataDir:        config.DataDir,
		apiKey:         config.APIKey,
		apiKeyID:       config.APIKeyID,
		overlayEnabled: config.OverlayEnabled,
		version:        config.Version,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s
}

// Handler returns the root handler with every route and middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.metricsMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware, s.rateLimitMiddleware)

	api.HandleFunc("/resources", s.resourcesHandler).Methods(http.MethodGet)
	api.HandleFunc("/camera/{name}/image", s.cameraImageHandler).Methods(http.MethodGet)

	v := api.PathPrefix("/vision/{name}").Subrouter()
	v.HandleFunc("/detections", s.detectionsHandler).Methods(http.MethodPost)
	v.HandleFunc("/detections_from_camera", s.detectionsFromCameraHandler).Methods(http.MethodGet)
	v.HandleFunc("/classifications", s.classificationsHandler).Methods(http.MethodPost)
	v.HandleFunc("/classifications_from_camera", s.classificationsFromCameraHandler).Methods(http.MethodGet)
	v.HandleFunc("/object_point_clouds", s.objectPointCloudsHandler).Methods(http.MethodGet)
	v.HandleFunc("/capture_all", s.captureAllHandler).Methods(http.MethodGet)
	v.HandleFunc("/properties", s.propertiesHandler).Methods(http.MethodGet)
	v.HandleFunc("/do_command", s.doCommandHandler).Methods(http.MethodPost)
	v.HandleFunc("/stream", s.streamHandler).Methods(http.MethodGet)

	api.HandleFunc("/data/upload", s.uploadHandler).Methods(http.MethodPost)

	// Subrouters do not inherit these, so every level gets its own.
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeErrorResponse(w, "not found", http.StatusNotFound)
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	for _, router := range []*mux.Router{r, api, v} {
		router.NotFoundHandler = notFound
		router.MethodNotAllowedHandler = notAllowed
	}

	return s.corsMiddleware(r)
}

// HTTPServer wraps Handler in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
