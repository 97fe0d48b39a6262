package server

import (
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// visionFor resolves the service named in the route.
func (s *Server) visionFor(r *http.Request) (vision.Service, error) {
	return s.resources.Vision(mux.Vars(r)["name"])
}

// readUploadedImage decodes the multipart "image" field.
func (s *Server) readUploadedImage(w http.ResponseWriter, r *http.Request) (image.Image, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, badRequest("failed to parse form data: %v", err)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, badRequest("no image file provided")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, badRequest("failed to read image data: %v", err)
	}
	img, err := camera.DecodeImage(camera.Image{Data: data, MimeType: header.Header.Get("Content-Type")})
	if err != nil {
		return nil, badRequest("invalid image format: %v", err)
	}
	return img, nil
}

// detectionsHandler detects QR codes in an uploaded image. With
// format=overlay the image is returned as PNG with the detections drawn.
func (s *Server) detectionsHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	img, err := s.readUploadedImage(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	dets, err := svc.Detections(ctx, img, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	detectionRequestsTotal.WithLabelValues("image").Inc()

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == "overlay" {
		s.writeOverlay(w, r, img, dets)
		return
	}
	s.writeJSON(w, http.StatusOK, DetectionsResponse{Success: true, Detections: nonNil(dets)})
}

// writeOverlay renders detections over img as PNG.
func (s *Server) writeOverlay(w http.ResponseWriter, r *http.Request, img image.Image, dets []detection.Detection) {
	if !s.overlayEnabled {
		s.writeErrorResponse(w, "overlay output disabled", http.StatusForbidden)
		return
	}
	opts := detection.DefaultOverlayOptions()
	if c := detection.ParseHexColor(r.FormValue("box")); c != nil {
		opts.BoxColor = c
		opts.LabelColor = c
	}
	ov := detection.RenderOverlay(img, dets, opts)
	w.Header().Set("Content-Type", camera.MimePNG)
	if err := png.Encode(w, ov); err != nil {
		s.logger.Error("Failed to encode overlay", "error", err)
	}
}

// detectionsFromCameraHandler detects QR codes in a camera frame.
func (s *Server) detectionsFromCameraHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	dets, err := svc.DetectionsFromCamera(ctx, r.URL.Query().Get("camera"), nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	detectionRequestsTotal.WithLabelValues("camera").Inc()
	s.writeJSON(w, http.StatusOK, DetectionsResponse{Success: true, Detections: nonNil(dets)})
}

func (s *Server) classificationsHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	img, err := s.readUploadedImage(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := countParam(r.FormValue("n"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	cls, err := svc.Classifications(ctx, img, n, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ClassificationsResponse{Success: true, Classifications: cls})
}

func (s *Server) classificationsFromCameraHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := countParam(r.URL.Query().Get("n"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	cls, err := svc.ClassificationsFromCamera(ctx, r.URL.Query().Get("camera"), n, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ClassificationsResponse{Success: true, Classifications: cls})
}

func (s *Server) objectPointCloudsHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	objs, err := svc.ObjectPointClouds(ctx, r.URL.Query().Get("camera"), nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ObjectsResponse{Success: true, Objects: objs})
}

func (s *Server) captureAllHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	q := r.URL.Query()
	opts := vision.CaptureOptions{
		ReturnImage:             boolParam(q.Get("image")),
		ReturnClassifications:   boolParam(q.Get("classifications")),
		ReturnDetections:        boolParam(q.Get("detections")),
		ReturnObjectPointClouds: boolParam(q.Get("object_point_clouds")),
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := svc.CaptureAllFromCamera(ctx, q.Get("camera"), opts, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CaptureAllResponse{Success: true, Result: res})
}

func (s *Server) propertiesHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	props, err := svc.Properties(r.Context(), nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PropertiesResponse{Success: true, Properties: props})
}

func (s *Server) doCommandHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var cmd map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&cmd); err != nil || cmd == nil {
		s.writeError(w, vision.ErrNoCommand)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	out, err := svc.DoCommand(ctx, cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if out == nil {
		out = map[string]any{}
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{Success: true, Result: out})
}

func countParam(v string) (int, error) {
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("invalid count %q", v)
	}
	return n, nil
}

func boolParam(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func nonNil(dets []detection.Detection) []detection.Detection {
	if dets == nil {
		return []detection.Detection{}
	}
	return dets
}
