package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrvision/internal/batch"
	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/config"
	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/trigger"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// scanServiceName names the local vision service in logs and metrics.
const scanServiceName = "scan"

type scanOptions struct {
	Interval   time.Duration
	Once       bool
	OverlayDir string
	Overlay    detection.OverlayOptions
}

func newScanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Detect QR codes locally in frames from a camera source",
		Long: `Grab frames from a camera, preprocess them and decode QR codes locally.
URL payloads are opened at most once per cooldown window.

Frame sources:
  remote  camera of a remote host (ROBOT_ADDRESS, CAMERA_NAME)
  http    snapshot URL returning a JPEG or PNG image
  file    image file, or a directory cycled frame by frame

Type q and press enter to quit.

Examples:
  qrvision scan
  qrvision scan --source http --url http://cam.local/snapshot.jpg --once
  qrvision scan --source file --path ./frames --overlay-dir ./out --trigger log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			cam, closeSource, err := scanCamera(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeSource()

			var fired atomic.Bool
			opts := []vision.QROption{vision.WithLogger(a.logger)}
			if base := newOpener(a.cfg.Trigger.Mode, a.logger); base != nil {
				opts = append(opts, vision.WithOpener(trigger.FuncOpener(func(ctx context.Context, url string) error {
					if err := base.Open(ctx, url); err != nil {
						return err
					}
					fired.Store(true)
					return nil
				})))
			}

			svc, err := vision.NewQRService(ctx, vision.Dependencies{cam.Name(): cam}, vision.ResourceConfig{
				Name:       scanServiceName,
				API:        vision.APIVision,
				Model:      vision.QRModel,
				Attributes: a.cfg.QRAttributes(cam.Name()),
				DependsOn:  []string{cam.Name()},
			}, opts...)
			if err != nil {
				return fmt.Errorf("failed to create vision service: %w", err)
			}
			defer func() { _ = svc.Close(context.Background()) }()

			overlay := detection.DefaultOverlayOptions()
			if c := detection.ParseHexColor(a.cfg.Output.OverlayBoxColor); c != nil {
				overlay.BoxColor = c
				overlay.LabelColor = c
			}
			return scan(ctx, svc, &fired, scanOptions{
				Interval:   a.cfg.Scan.Interval,
				Once:       a.cfg.Scan.ExitOnTrigger,
				OverlayDir: a.cfg.Output.OverlayDir,
				Overlay:    overlay,
			}, quitOnKey(cmd.InOrStdin()), a.logger)
		},
	}

	f := cmd.Flags()
	addRobotFlags(f)
	f.String("source", "", "frame source: remote, http or file")
	bindFlag(f, "source", "scan.source")
	f.String("url", "", "snapshot URL for --source http")
	bindFlag(f, "url", "scan.url")
	f.String("path", "", "image file or directory for --source file")
	bindFlag(f, "path", "scan.path")
	f.String("camera", "", "camera name")
	bindFlag(f, "camera", "robot.camera_name")
	f.Duration("interval", time.Second, "pause between two frames")
	bindFlag(f, "interval", "scan.interval")
	f.Bool("once", false, "exit after the first URL was opened")
	bindFlag(f, "once", "scan.exit_on_trigger")
	f.String("trigger", "", "what to do with URLs: open, log or none")
	bindFlag(f, "trigger", "trigger.mode")
	f.Duration("cooldown", 0, "minimum time between two triggers of the same payload")
	bindFlag(f, "cooldown", "cooldown.period")
	f.Bool("no-preprocess", false, "decode raw frames without preprocessing")
	f.String("overlay-dir", "", "directory for annotated frames with detected codes")
	bindFlag(f, "overlay-dir", "output.overlay_dir")
	f.String("overlay-box-color", "", "overlay box color (hex)")
	bindFlag(f, "overlay-box-color", "output.overlay_box_color")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if raw, _ := cmd.Flags().GetBool("no-preprocess"); raw {
			a.cfg.Preprocess.Enabled = false
		}
		return nil
	}

	return cmd
}

// scanCamera builds the frame source named by the scan settings.
func scanCamera(ctx context.Context, cfg *config.Config, logger *slog.Logger) (camera.Camera, func(), error) {
	name := cfg.Robot.CameraName
	switch cfg.Scan.Source {
	case config.SourceHTTP:
		if cfg.Scan.URL == "" {
			return nil, nil, fmt.Errorf("--url is required for source %s", config.SourceHTTP)
		}
		cam := camera.NewHTTPCamera(name, cfg.Scan.URL, nil)
		return cam, func() { _ = cam.Close(context.Background()) }, nil
	case config.SourceFile:
		if cfg.Scan.Path == "" {
			return nil, nil, fmt.Errorf("--path is required for source %s", config.SourceFile)
		}
		cam, err := camera.NewFileCamera(name, cfg.Scan.Path)
		if err != nil {
			return nil, nil, err
		}
		return cam, func() { _ = cam.Close(context.Background()) }, nil
	default:
		client, err := dialRobot(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return client.Camera(name), func() { _ = client.Close() }, nil
	}
}

// scan decodes one frame per interval until a URL was opened (with Once),
// ctx is done or quit is closed. Frame errors are logged and retried.
func scan(
	ctx context.Context,
	svc vision.Service,
	fired *atomic.Bool,
	opts scanOptions,
	quit <-chan struct{},
	logger *slog.Logger,
) error {
	if opts.OverlayDir != "" {
		if err := os.MkdirAll(opts.OverlayDir, 0o755); err != nil {
			return fmt.Errorf("failed to create overlay directory: %w", err)
		}
	}

	for frame := 1; ; frame++ {
		scanOnce(ctx, svc, frame, opts, logger)
		if opts.Once && fired.Load() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			logger.Info("Quit requested")
			return nil
		case <-time.After(opts.Interval):
		}
	}
}

func scanOnce(ctx context.Context, svc vision.Service, frame int, opts scanOptions, logger *slog.Logger) {
	res, err := svc.CaptureAllFromCamera(ctx, "", vision.CaptureOptions{
		ReturnImage:      opts.OverlayDir != "",
		ReturnDetections: true,
	}, nil)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("Failed to grab frame", "error", err)
		}
		return
	}
	if opts.OverlayDir == "" || len(res.Detections) == 0 || res.Image == nil {
		return
	}

	img, err := camera.DecodeImage(*res.Image)
	if err != nil {
		logger.Warn("Failed to decode frame for overlay", "error", err)
		return
	}
	path := filepath.Join(opts.OverlayDir, fmt.Sprintf("frame_%06d.png", frame))
	if err := batch.WriteOverlayPNG(path, detection.RenderOverlay(img, res.Detections, opts.Overlay)); err != nil {
		logger.Warn("Failed to save overlay", "path", path, "error", err)
		return
	}
	logger.Debug("Saved overlay", "path", path, "codes", len(res.Detections))
}
