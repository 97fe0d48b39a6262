package batch

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/detection"
)

// loadImage reads and decodes one image file.
func loadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from discovery over user arguments
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := camera.DecodeImage(camera.Image{Data: data, MimeType: camera.MimeTypeForPath(path)})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}

// processFile decodes one file and writes its overlay when configured.
func processFile(ctx context.Context, det Detector, path string, cfg Config, logger *slog.Logger) detection.FileResult {
	res := detection.FileResult{File: path}

	img, err := loadImage(path)
	if err != nil {
		logger.Warn("Skipping image", "file", path, "error", err)
		res.Error = err.Error()
		return res
	}

	dets, err := det.Detections(ctx, img, nil)
	if err != nil {
		logger.Warn("Decoding failed", "file", path, "error", err)
		res.Error = err.Error()
		return res
	}
	res.Detections = dets
	for _, d := range dets {
		logger.Info("QR code detected", "file", path, "payload", d.Label)
	}

	if cfg.OverlayDir != "" {
		if err := saveOverlay(img, dets, path, cfg); err != nil {
			logger.Warn("Failed to write overlay", "file", path, "error", err)
		}
	}
	return res
}

// saveOverlay writes <overlay_dir>/<name>_overlay.png.
func saveOverlay(img image.Image, dets []detection.Detection, path string, cfg Config) error {
	opts := cfg.Overlay
	if opts.BoxColor == nil {
		opts = detection.DefaultOverlayOptions()
	}
	ov := detection.RenderOverlay(img, dets, opts)

	if err := os.MkdirAll(cfg.OverlayDir, 0o750); err != nil {
		return err
	}
	return WriteOverlayPNG(OverlayPath(cfg.OverlayDir, path), ov)
}

// OverlayPath returns where the overlay for src is written inside dir.
func OverlayPath(dir, src string) string {
	base := filepath.Base(src)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
}

// WriteOverlayPNG encodes img as PNG at path.
func WriteOverlayPNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // G304: path built from the overlay-dir flag
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
