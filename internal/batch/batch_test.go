package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/testutil"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

type countingDetector struct {
	calls atomic.Int32
	err   error
}

func (d *countingDetector) Detections(context.Context, image.Image, map[string]any) ([]detection.Detection, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return []detection.Detection{detection.New(image.Rect(1, 2, 3, 4), "stub")}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newQRDetector(t *testing.T) vision.Service {
	t.Helper()
	svc, err := vision.NewQRService(context.Background(), vision.Dependencies{}, vision.ResourceConfig{
		Name:       "decode",
		API:        vision.APIVision,
		Model:      vision.QRModel,
		Attributes: map[string]any{"trigger": vision.TriggerNone},
	}, vision.WithLogger(quietLogger()))
	require.NoError(t, err)
	return svc
}

func TestRun_DecodesFiles(t *testing.T) {
	dir := t.TempDir()
	qr, _ := testutil.QRFrame(t, testutil.DefaultQRConfig("http://example.com/a"))
	testutil.SaveImage(t, qr, filepath.Join(dir, "a.png"))
	testutil.SaveImage(t, testutil.BlankFrame(80, 60, color.White), filepath.Join(dir, "b.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.png"), []byte("broken"), 0o600))

	overlayDir := filepath.Join(t.TempDir(), "overlays")
	res, err := Run(context.Background(), newQRDetector(t), []string{dir}, Config{
		Workers:    2,
		OverlayDir: overlayDir,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	assert.Equal(t, filepath.Join(dir, "a.png"), res.Results[0].File)
	require.Len(t, res.Results[0].Detections, 1)
	assert.Equal(t, "http://example.com/a", res.Results[0].Detections[0].Label)

	assert.Empty(t, res.Results[1].Detections)
	assert.Empty(t, res.Results[1].Error)

	assert.NotEmpty(t, res.Results[2].Error)

	withCodes, failed, codes := res.Stats()
	assert.Equal(t, 1, withCodes)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, codes)

	assert.FileExists(t, OverlayPath(overlayDir, "a.png"))
	assert.FileExists(t, OverlayPath(overlayDir, "b.png"))
}

func TestRun_NoImages(t *testing.T) {
	_, err := Run(context.Background(), &countingDetector{}, []string{t.TempDir()}, Config{})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestRun_DetectorErrorIsPerFile(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.png", "b.png", "c.png"} {
		testutil.SaveImage(t, testutil.BlankFrame(8, 8, color.White), filepath.Join(dir, n))
	}
	det := &countingDetector{err: errors.New("decoder exploded")}

	res, err := Run(context.Background(), det, []string{dir}, Config{Workers: 4, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, int32(3), det.calls.Load())
	for _, r := range res.Results {
		assert.Equal(t, "decoder exploded", r.Error)
	}
	assert.Equal(t, 3, res.Workers)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	testutil.SaveImage(t, testutil.BlankFrame(8, 8, color.White), filepath.Join(dir, "a.png"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, &countingDetector{}, []string{dir}, Config{Logger: quietLogger()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_SaveResults(t *testing.T) {
	res := &Result{Results: []detection.FileResult{{
		File:       "a.png",
		Detections: []detection.Detection{detection.New(image.Rect(1, 2, 3, 4), "hello")},
	}}}

	var buf bytes.Buffer
	require.NoError(t, res.SaveResults(&buf, "csv", ""))
	assert.Contains(t, buf.String(), "a.png,0,hello,1,2,3,4,1.000")

	out := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, res.SaveResults(&buf, "json", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hello"`)

	assert.Error(t, res.SaveResults(&buf, "xml", ""))
}
