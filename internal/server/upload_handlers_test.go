package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_UploadHandler(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, Config{DataDir: dir})
	data := blankPNG(t)

	body, ct := multipartBody(t, "file", "frame.png", data, map[string][]string{
		"part_id": {"part-1"},
		"tags":    {"qr, test", "qr", "extra"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/data/upload", body)
	req.Header.Set("Content-Type", ct)

	w := serve(s, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeJSON[UploadResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "part-1", resp.File.PartID)
	assert.Equal(t, "frame.png", resp.File.FileName)
	assert.Equal(t, int64(len(data)), resp.File.Size)
	assert.Equal(t, []string{"qr", "test", "extra"}, resp.File.Tags)
	assert.NotEmpty(t, resp.File.ID)

	stored, err := os.ReadFile(filepath.Join(dir, "part-1", resp.File.StoredAs))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	sidecar, err := os.ReadFile(filepath.Join(dir, "part-1", resp.File.StoredAs+".json"))
	require.NoError(t, err)
	var meta UploadMetadata
	require.NoError(t, json.Unmarshal(sidecar, &meta))
	assert.Equal(t, resp.File.ID, meta.ID)
}

func TestServer_UploadHandler_Errors(t *testing.T) {
	tests := []struct {
		name         string
		dataDir      bool
		field        string
		partID       string
		expectedCode int
	}{
		{name: "uploads disabled", field: "file", partID: "p", expectedCode: http.StatusServiceUnavailable},
		{name: "missing part id", dataDir: true, field: "file", expectedCode: http.StatusBadRequest},
		{name: "part id with separator", dataDir: true, field: "file", partID: "../etc", expectedCode: http.StatusBadRequest},
		{name: "missing file", dataDir: true, field: "", partID: "p", expectedCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			if tt.dataDir {
				cfg.DataDir = t.TempDir()
			}
			s, _ := newTestServer(t, cfg)
			values := map[string][]string{}
			if tt.partID != "" {
				values["part_id"] = []string{tt.partID}
			}
			body, ct := multipartBody(t, tt.field, "a.png", []byte("x"), values)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/data/upload", body)
			req.Header.Set("Content-Type", ct)

			w := serve(s, req)
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestStoreUpload(t *testing.T) {
	tests := []struct {
		name      string
		prepare   func(t *testing.T, dir string)
		wantErr   string
		dataLeft  bool
		sidecarOK bool
	}{
		{name: "stores data and sidecar", dataLeft: true, sidecarOK: true},
		{
			name: "sidecar failure removes data",
			prepare: func(t *testing.T, dir string) {
				// A directory in place of the sidecar makes its write fail.
				require.NoError(t, os.Mkdir(filepath.Join(dir, "id-1-a.png.json"), 0o750))
			},
			wantErr: "store upload metadata",
		},
		{
			name: "existing data file is kept",
			prepare: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "id-1-a.png"), []byte("old"), 0o600))
			},
			wantErr:  "store upload",
			dataLeft: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.prepare != nil {
				tt.prepare(t, dir)
			}
			meta := &UploadMetadata{ID: "id-1", PartID: "p", FileName: "a.png", StoredAs: "id-1-a.png"}

			size, err := storeUpload(dir, meta, strings.NewReader("data"))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(4), size)
				assert.Equal(t, int64(4), meta.Size)
			}

			_, statErr := os.Stat(filepath.Join(dir, meta.StoredAs))
			assert.Equal(t, tt.dataLeft, statErr == nil, "data file present")
			if tt.sidecarOK {
				raw, err := os.ReadFile(filepath.Join(dir, meta.StoredAs+".json"))
				require.NoError(t, err)
				var stored UploadMetadata
				require.NoError(t, json.Unmarshal(raw, &stored))
				assert.Equal(t, "id-1", stored.ID)
			}
		})
	}
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{}, parseTags(nil))
	assert.Equal(t, []string{"a", "b", "c"}, parseTags([]string{"a,b", " c ", "a", ""}))
}
