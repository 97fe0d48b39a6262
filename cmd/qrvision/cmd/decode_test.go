package cmd

import (
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrvision/internal/batch"
	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/testutil"
)

func saveQRImage(t *testing.T, path string) {
	t.Helper()
	img, _ := testutil.QRFrame(t, testutil.DefaultQRConfig(testPayload))
	testutil.SaveImage(t, img, path)
}

func saveBlankImage(t *testing.T, path string) {
	t.Helper()
	testutil.SaveImage(t, testutil.BlankFrame(64, 64, color.White), path)
}

func TestDecodeCommandJSON(t *testing.T) {
	dir := isolate(t)
	saveQRImage(t, filepath.Join(dir, "images", "a_qr.png"))
	saveBlankImage(t, filepath.Join(dir, "images", "b_blank.png"))

	out, _, err := executeCommand(t, "decode", "images", "--format", "json")
	require.NoError(t, err)

	var doc struct {
		Images []detection.FileResult `json:"images"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Images, 2)

	assert.Equal(t, filepath.Join("images", "a_qr.png"), doc.Images[0].File)
	require.Len(t, doc.Images[0].Detections, 1)
	assert.Equal(t, testPayload, doc.Images[0].Detections[0].Label)
	assert.InDelta(t, 1.0, doc.Images[0].Detections[0].Confidence, 1e-9)

	assert.Equal(t, filepath.Join("images", "b_blank.png"), doc.Images[1].File)
	assert.Empty(t, doc.Images[1].Detections)
}

func TestDecodeCommandOutputFile(t *testing.T) {
	dir := isolate(t)
	saveQRImage(t, filepath.Join(dir, "qr.png"))

	out, _, err := executeCommand(t, "decode", "qr.png", "--format", "csv", "--output", "results.csv")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(filepath.Join(dir, "results.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "file,index,data")
	assert.Contains(t, string(data), testPayload)
}

func TestDecodeCommandNoPreprocess(t *testing.T) {
	dir := isolate(t)
	saveQRImage(t, filepath.Join(dir, "qr.png"))

	out, _, err := executeCommand(t, "decode", "qr.png", "--no-preprocess")
	require.NoError(t, err)
	assert.Contains(t, out, testPayload)
}

func TestDecodeCommandOverlay(t *testing.T) {
	dir := isolate(t)
	saveQRImage(t, filepath.Join(dir, "qr.png"))

	_, _, err := executeCommand(t, "decode", "qr.png", "--overlay-dir", "overlays", "--overlay-box-color", "#FF0000")
	require.NoError(t, err)
	assert.FileExists(t, batch.OverlayPath(filepath.Join(dir, "overlays"), "qr.png"))
}

func TestDecodeCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string)
		args    []string
		wantErr string
	}{
		{
			name:    "no arguments",
			args:    []string{"decode"},
			wantErr: "requires at least 1 arg",
		},
		{
			name:    "missing file",
			args:    []string{"decode", "missing.png"},
			wantErr: "failed to discover image files",
		},
		{
			name: "empty directory",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0o750))
			},
			args:    []string{"decode", "empty"},
			wantErr: batch.ErrNoImages.Error(),
		},
		{
			name: "every file broken",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o600))
			},
			args:    []string{"decode", "broken.png"},
			wantErr: "all 1 files failed",
		},
		{
			name:    "unknown output format",
			args:    []string{"decode", "x.png", "--format", "xml"},
			wantErr: "invalid output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			if tt.setup != nil {
				tt.setup(t, dir)
			}
			_, _, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
