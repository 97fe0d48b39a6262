package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/trigger"
)

// detectionSource asks a vision service for detections in a camera frame.
type detectionSource interface {
	DetectionsFromCamera(ctx context.Context, cameraName string) ([]detection.Detection, error)
}

type watchOptions struct {
	Camera        string
	Interval      time.Duration
	ExitOnTrigger bool
}

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a remote vision service and open the first QR code URL",
		Long: `Connect to a remote host and ask its vision service for QR code detections
in frames of the named camera, once per interval. The payload of the last
detection is turned into a URL and opened. By default the command exits after
the first URL was opened.

Connection settings are read from ROBOT_ADDRESS, ROBOT_API_KEY and
ROBOT_API_KEY_ID, resource names from CAMERA_NAME and VISION_NAME. A .env file
in the working directory is loaded first.

Type q and press enter to quit.

Examples:
  qrvision watch --address robot.local:8080 --camera camera-1 --vision vision-1
  qrvision watch --exit-on-trigger=false --trigger log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitOnTrigger, _ := cmd.Flags().GetBool("exit-on-trigger")

			ctx, stop := signalContext(cmd)
			defer stop()

			client, err := dialRobot(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			opts := watchOptions{
				Camera:        a.cfg.Robot.CameraName,
				Interval:      a.cfg.Scan.Interval,
				ExitOnTrigger: exitOnTrigger,
			}
			return watch(ctx, client.Vision(a.cfg.Robot.VisionName),
				newOpener(a.cfg.Trigger.Mode, a.logger), opts, quitOnKey(cmd.InOrStdin()), a.logger)
		},
	}

	f := cmd.Flags()
	addRobotFlags(f)
	f.String("camera", "", "camera to take frames from")
	bindFlag(f, "camera", "robot.camera_name")
	f.String("vision", "", "vision service to ask for detections")
	bindFlag(f, "vision", "robot.vision_name")
	f.Duration("interval", time.Second, "pause between two detection requests")
	bindFlag(f, "interval", "scan.interval")
	f.String("trigger", "", "what to do with URLs: open, log or none")
	bindFlag(f, "trigger", "trigger.mode")
	f.Bool("exit-on-trigger", true, "exit after the first URL was opened")

	return cmd
}

// watch polls src until a URL was opened (with ExitOnTrigger), ctx is done or
// quit is closed. Request errors are logged and retried.
func watch(
	ctx context.Context,
	src detectionSource,
	opener trigger.Opener,
	opts watchOptions,
	quit <-chan struct{},
	logger *slog.Logger,
) error {
	var trig *trigger.Trigger
	if opener != nil {
		trig = trigger.New(opener, logger)
	}

	for {
		if watchOnce(ctx, src, trig, opts.Camera, logger) && opts.ExitOnTrigger {
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

// watchOnce runs one detection request and reports whether a URL was opened.
func watchOnce(ctx context.Context, src detectionSource, trig *trigger.Trigger, cameraName string, logger *slog.Logger) bool {
	dets, err := src.DetectionsFromCamera(ctx, cameraName)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("Error during image capture or QR code processing", "camera", cameraName, "error", err)
		}
		return false
	}
	if len(dets) == 0 {
		logger.Info("No QR code detected yet")
		return false
	}

	for _, d := range dets {
		logger.Info("QR Code detected", "payload", d.Label)
	}
	if trig == nil {
		return false
	}
	return trig.Fire(ctx, dets[len(dets)-1].Label)
}
