package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/testutil"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

const testPayload = "https://example.com/qr"

// fakeResources is a ResourceProvider over fixed maps.
type fakeResources struct {
	cameras  map[string]camera.Camera
	services map[string]vision.Service
}

func (f *fakeResources) Camera(name string) (camera.Camera, error) {
	if c, ok := f.cameras[name]; ok {
		return c, nil
	}
	return nil, &vision.ResourceNotFoundError{Name: vision.ResourceName{API: vision.APICamera, Name: name}}
}

func (f *fakeResources) Vision(name string) (vision.Service, error) {
	if s, ok := f.services[name]; ok {
		return s, nil
	}
	return nil, &vision.ResourceNotFoundError{Name: vision.ResourceName{API: vision.APIVision, Name: name}}
}

func (f *fakeResources) ResourceNames() []vision.ResourceName {
	var out []vision.ResourceName
	for n := range f.cameras {
		out = append(out, vision.ResourceName{API: vision.APICamera, Name: n})
	}
	for n := range f.services {
		out = append(out, vision.ResourceName{API: vision.APIVision, Name: n})
	}
	return out
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// newTestResources wires a QR service to a static camera showing testPayload.
func newTestResources(t *testing.T) (*fakeResources, *camera.StaticCamera) {
	t.Helper()
	frame, _ := testutil.QRFrame(t, testutil.DefaultQRConfig(testPayload))
	cam := camera.NewStaticCamera("cam", frame)

	svc, err := vision.NewQRService(context.Background(), vision.Dependencies{"cam": cam}, vision.ResourceConfig{
		Name:  "qr",
		API:   vision.APIVision,
		Model: vision.QRModel,
		Attributes: map[string]any{
			"camera_name": "cam",
			"trigger":     "none",
		},
	}, vision.WithLogger(quietLogger()))
	require.NoError(t, err)

	return &fakeResources{
		cameras:  map[string]camera.Camera{"cam": cam},
		services: map[string]vision.Service{"qr": svc},
	}, cam
}

func newTestServer(t *testing.T, cfg Config) (*Server, *camera.StaticCamera) {
	t.Helper()
	res, cam := newTestResources(t)
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return NewServer(cfg, res), cam
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// multipartBody builds a form with one file field and extra values.
func multipartBody(t *testing.T, field, filename string, data []byte, values map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, vs := range values {
		for _, v := range vs {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.BlankFrame(64, 48, color.White))
}
