package server

import (
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/testutil"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

func TestServer_HealthHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{Version: "1.2.3"})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{name: "GET request success", method: http.MethodGet, expectedStatus: http.StatusOK},
		{name: "POST request not allowed", method: http.MethodPost, expectedStatus: http.StatusMethodNotAllowed},
		{name: "PUT request not allowed", method: http.MethodPut, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(tt.method, "/health", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			if tt.expectedStatus == http.StatusOK {
				resp := decodeJSON[HealthResponse](t, w)
				assert.Equal(t, "healthy", resp.Status)
				assert.Equal(t, "1.2.3", resp.Version)
				assert.NotEmpty(t, resp.Time)
			}
		})
	}
}

func TestServer_ResourcesHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/resources", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeJSON[ResourcesResponse](t, w)
	assert.True(t, resp.Success)
	assert.ElementsMatch(t, []ResourceInfo{
		{API: vision.APICamera.String(), Name: "cam"},
		{API: vision.APIVision.String(), Name: "qr"},
	}, resp.Resources)
}

func TestServer_CameraImageHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	tests := []struct {
		name         string
		path         string
		expectedCode int
		expectedMime string
	}{
		{name: "default lossless", path: "/api/v1/camera/cam/image", expectedCode: http.StatusOK, expectedMime: camera.MimePNG},
		{name: "jpeg request stays lossless", path: "/api/v1/camera/cam/image?mime_type=image/jpeg", expectedCode: http.StatusOK, expectedMime: camera.MimePNG},
		{name: "bmp", path: "/api/v1/camera/cam/image?mime_type=image/bmp", expectedCode: http.StatusOK, expectedMime: camera.MimeBMP},
		{name: "png", path: "/api/v1/camera/cam/image?mime_type=image/png", expectedCode: http.StatusOK, expectedMime: camera.MimePNG},
		{name: "unknown camera", path: "/api/v1/camera/nope/image", expectedCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedMime != "" {
				assert.Equal(t, tt.expectedMime, w.Header().Get("Content-Type"))
				assert.NotZero(t, w.Body.Len())
			}
		})
	}
}

func TestServer_DetectionsFromCamera(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/vision/qr/detections_from_camera?camera=cam", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeJSON[DetectionsResponse](t, w)
	require.Len(t, resp.Detections, 1)
	assert.Equal(t, testPayload, resp.Detections[0].Label)
	assert.InDelta(t, 1.0, resp.Detections[0].Confidence, 1e-9)
}

func TestServer_DetectionsFromCamera_Errors(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	tests := []struct {
		name         string
		path         string
		expectedCode int
	}{
		{name: "unknown service", path: "/api/v1/vision/other/detections_from_camera", expectedCode: http.StatusNotFound},
		{name: "unknown camera", path: "/api/v1/vision/qr/detections_from_camera?camera=nope", expectedCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeJSON[ErrorResponse](t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestServer_DetectionsHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{OverlayEnabled: true})
	frame, _ := testutil.QRFrame(t, testutil.DefaultQRConfig(testPayload))
	qrPNG := testutil.EncodePNG(t, frame)

	t.Run("qr image", func(t *testing.T) {
		body, ct := multipartBody(t, "image", "qr.png", qrPNG, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vision/qr/detections", body)
		req.Header.Set("Content-Type", ct)

		w := serve(s, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeJSON[DetectionsResponse](t, w)
		require.Len(t, resp.Detections, 1)
		assert.Equal(t, testPayload, resp.Detections[0].Label)
	})

	t.Run("blank image returns empty list", func(t *testing.T) {
		body, ct := multipartBody(t, "image", "blank.png", blankPNG(t), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vision/qr/detections", body)
		req.Header.Set("Content-Type", ct)

		w := serve(s, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"detections":[]`)
	})

	t.Run("overlay", func(t *testing.T) {
		body, ct := multipartBody(t, "image", "qr.png", qrPNG, map[string][]string{"format": {"overlay"}})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vision/qr/detections", body)
		req.Header.Set("Content-Type", ct)

		w := serve(s, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, camera.MimePNG, w.Header().Get("Content-Type"))
		img, err := png.Decode(w.Body)
		require.NoError(t, err)
		assert.Equal(t, frame.Bounds().Size(), img.Bounds().Size())
	})

	t.Run("missing file", func(t *testing.T) {
		body, ct := multipartBody(t, "", "", nil, map[string][]string{"x": {"y"}})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vision/qr/detections", body)
		req.Header.Set("Content-Type", ct)

		w := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not an image", func(t *testing.T) {
		body, ct := multipartBody(t, "image", "x.png", []byte("not an image"), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vision/qr/detections", body)
		req.Header.Set("Content-Type", ct)

		w := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("GET not allowed", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/vision/qr/detections", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestServer_OverlayDisabled(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	body, ct := multipartBody(t, "image", "blank.png", blankPNG(t), map[string][]string{"format": {"overlay"}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vision/qr/detections", body)
	req.Header.Set("Content-Type", ct)

	w := serve(s, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_UnsupportedOperations(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	t.Run("classifications from camera are empty", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/vision/qr/classifications_from_camera?n=3", nil))
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeJSON[ClassificationsResponse](t, w)
		assert.True(t, resp.Success)
		assert.Empty(t, resp.Classifications)
	})

	t.Run("invalid count", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/vision/qr/classifications_from_camera?n=abc", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("object point clouds are empty", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/vision/qr/object_point_clouds", nil))
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeJSON[ObjectsResponse](t, w)
		assert.Empty(t, resp.Objects)
	})
}

func TestServer_PropertiesHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/vision/qr/properties", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON[PropertiesResponse](t, w)
	assert.True(t, resp.Properties.DetectionSupported)
	assert.False(t, resp.Properties.ClassificationSupported)
	assert.False(t, resp.Properties.ObjectPCDsSupported)
}

func TestServer_CaptureAllHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/vision/qr/capture_all?image=true&detections=true", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeJSON[CaptureAllResponse](t, w)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.Image)
	assert.Equal(t, camera.MimePNG, resp.Result.Image.MimeType)
	require.Len(t, resp.Result.Detections, 1)
	assert.Equal(t, testPayload, resp.Result.Detections[0].Label)
}

func TestServer_DoCommandHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	tests := []struct {
		name         string
		body         string
		expectedCode int
	}{
		{name: "object", body: `{"command":"status"}`, expectedCode: http.StatusOK},
		{name: "empty body", body: ``, expectedCode: http.StatusBadRequest},
		{name: "not an object", body: `[1,2]`, expectedCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/vision/qr/do_command", strings.NewReader(tt.body))
			w := serve(s, req)
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestServer_NotFoundRoute(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decodeJSON[ErrorResponse](t, w).Success)
}

func TestCountParam(t *testing.T) {
	n, err := countParam("")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = countParam("5")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = countParam("-1")
	assert.Error(t, err)
}

func TestServer_RoutingErrors(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	tests := []struct {
		name         string
		method       string
		path         string
		expectedCode int
	}{
		{name: "root wrong method", method: http.MethodPost, path: "/health", expectedCode: http.StatusMethodNotAllowed},
		{name: "api wrong method", method: http.MethodDelete, path: "/api/v1/resources", expectedCode: http.StatusMethodNotAllowed},
		{name: "upload wrong method", method: http.MethodGet, path: "/api/v1/data/upload", expectedCode: http.StatusMethodNotAllowed},
		{name: "vision wrong method", method: http.MethodGet, path: "/api/v1/vision/qr/detections", expectedCode: http.StatusMethodNotAllowed},
		{name: "vision camera wrong method", method: http.MethodPost, path: "/api/v1/vision/qr/detections_from_camera", expectedCode: http.StatusMethodNotAllowed},
		{name: "do_command wrong method", method: http.MethodGet, path: "/api/v1/vision/qr/do_command", expectedCode: http.StatusMethodNotAllowed},
		{name: "unknown root path", method: http.MethodGet, path: "/nope", expectedCode: http.StatusNotFound},
		{name: "unknown api path", method: http.MethodGet, path: "/api/v1/nope", expectedCode: http.StatusNotFound},
		{name: "unknown vision operation", method: http.MethodGet, path: "/api/v1/vision/qr/nope", expectedCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, tt.expectedCode, w.Code, w.Body.String())

			resp := decodeJSON[ErrorResponse](t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}
