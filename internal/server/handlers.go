package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// badRequestError marks client mistakes.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// resourcesHandler lists cameras and vision services.
func (s *Server) resourcesHandler(w http.ResponseWriter, _ *http.Request) {
	names := s.resources.ResourceNames()
	infos := make([]ResourceInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, ResourceInfo{API: n.API.String(), Name: n.Name})
	}
	s.writeJSON(w, http.StatusOK, ResourcesResponse{Success: true, Resources: infos})
}

// cameraImageHandler returns one encoded frame.
func (s *Server) cameraImageHandler(w http.ResponseWriter, r *http.Request) {
	cam, err := s.resources.Camera(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	mimeType := r.URL.Query().Get("mime_type")
	if mimeType == "" {
		mimeType = camera.MimeJPEG
	}
	img, err := cam.Image(ctx, mimeType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	_, _ = w.Write(img.Data)
}

// requestContext bounds a handler's work by the configured timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.requestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.requestTimeout)
	}
	return context.WithCancel(r.Context())
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var br *badRequestError
	var ie *camera.ImageError
	switch {
	case vision.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &br), errors.Is(err, vision.ErrNoCommand):
		return http.StatusBadRequest
	case errors.As(err, &ie) && ie.Operation == "decode":
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes the JSON error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeErrorResponse(w, err.Error(), status)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
