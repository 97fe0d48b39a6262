// Package batch decodes QR codes in many image files at once.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/qrvision/internal/detection"
)

// ErrNoImages is returned when discovery finds nothing to decode.
var ErrNoImages = errors.New("no image files found")

// Detector finds QR codes in an image. vision.Service satisfies it.
type Detector interface {
	Detections(ctx context.Context, img image.Image, extra map[string]any) ([]detection.Detection, error)
}

// Config holds all configuration for batch decoding.
type Config struct {
	Discover DiscoverOptions

	// Workers is the number of images decoded concurrently.
	Workers int

	// OverlayDir receives an annotated PNG per image when set.
	OverlayDir string
	Overlay    detection.OverlayOptions

	Logger *slog.Logger
}

// Result holds the result of batch decoding.
type Result struct {
	Results  []detection.FileResult
	Duration time.Duration
	Workers  int
}

// Run decodes every image found under paths. A file that cannot be read or
// decoded is reported in its FileResult and does not stop the batch.
func Run(ctx context.Context, det Detector, paths []string, cfg Config) (*Result, error) {
	files, err := Discover(paths, cfg.Discover)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(files))

	start := time.Now()
	results := make([]detection.FileResult, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = processFile(ctx, det, files[i], cfg, logger)
			}
		}()
	}

feed:
	for i := range files {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{Results: results, Duration: time.Since(start), Workers: workers}, nil
}

// FormatResults formats the results as text, json, csv or yaml.
func (r *Result) FormatResults(format string) (string, error) {
	return detection.Format(r.Results, format)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = io.WriteString(w, output)
	return err
}

// Stats counts files with codes and files that failed.
func (r *Result) Stats() (withCodes, failed, codes int) {
	for _, fr := range r.Results {
		switch {
		case fr.Error != "":
			failed++
		case len(fr.Detections) > 0:
			withCodes++
			codes += len(fr.Detections)
		}
	}
	return withCodes, failed, codes
}
