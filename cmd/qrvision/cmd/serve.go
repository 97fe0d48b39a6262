package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrvision/internal/config"
	"github.com/MeKo-Tech/qrvision/internal/host"
	"github.com/MeKo-Tech/qrvision/internal/server"
	"github.com/MeKo-Tech/qrvision/internal/version"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host cameras and QR vision services over HTTP",
		Long: `Start an HTTP server that hosts the configured cameras and vision services.

Resources come from the "resources" section of the configuration. Without it,
one camera (--source file|http) and one QR vision service bound to it are
created from the robot and scan settings.

The server provides the following endpoints:
  GET  /health                                    - Health check
  GET  /metrics                                   - Prometheus metrics
  GET  /api/v1/resources                          - List resources
  GET  /api/v1/camera/{name}/image                - Camera frame
  POST /api/v1/vision/{name}/detections           - Detect QR codes in an upload
  GET  /api/v1/vision/{name}/detections_from_camera
  GET  /api/v1/vision/{name}/stream               - WebSocket detection stream
  POST /api/v1/data/upload                        - Store a file for a part

Examples:
  qrvision serve --source file --path ./frames
  qrvision serve --host 0.0.0.0 --port 3000 --config robot.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			ln, err := net.Listen("tcp", a.cfg.Addr())
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", a.cfg.Addr(), err)
			}
			return runServer(ctx, a.cfg, a.logger, ln)
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	bindFlag(f, "host", "server.host")
	f.IntP("port", "p", 8080, "server port")
	bindFlag(f, "port", "server.port")
	f.String("cors-origin", "*", "CORS allowed origins")
	bindFlag(f, "cors-origin", "server.cors_origin")
	f.Int("max-upload-size", 32, "maximum upload size in MB")
	bindFlag(f, "max-upload-size", "server.max_upload_mb")
	f.Int("timeout", 30, "request timeout in seconds")
	bindFlag(f, "timeout", "server.timeout_sec")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	bindFlag(f, "shutdown-timeout", "server.shutdown_timeout")
	f.Bool("overlay-enable", true, "enable overlay image responses")
	bindFlag(f, "overlay-enable", "server.overlay_enabled")
	f.String("data-dir", "data", "directory receiving uploaded files (empty disables uploads)")
	bindFlag(f, "data-dir", "server.data_dir")
	f.String("api-key", "", "API key clients must present")
	bindFlag(f, "api-key", "server.api_key")
	f.String("api-key-id", "", "API key ID clients must present")
	bindFlag(f, "api-key-id", "server.api_key_id")

	// Default resources
	f.String("source", "", "camera source for the default resources: file or http")
	bindFlag(f, "source", "scan.source")
	f.String("path", "", "image file or directory for a file camera")
	bindFlag(f, "path", "scan.path")
	f.String("url", "", "snapshot URL for an http camera")
	bindFlag(f, "url", "scan.url")

	// Rate limiting
	f.Bool("rate-limit-enabled", false, "enable rate limiting")
	bindFlag(f, "rate-limit-enabled", "server.rate_limit.enabled")
	f.Int("requests-per-minute", 120, "maximum requests per minute per client")
	bindFlag(f, "requests-per-minute", "server.rate_limit.requests_per_minute")
	f.Int("requests-per-hour", 3000, "maximum requests per hour per client")
	bindFlag(f, "requests-per-hour", "server.rate_limit.requests_per_hour")
	f.Int("requests-per-day", 0, "maximum requests per day per client (0 = unlimited)")
	bindFlag(f, "requests-per-day", "server.rate_limit.requests_per_day")
	f.Int64("max-data-per-day", 0, "maximum bytes uploaded per day per client (0 = unlimited)")
	bindFlag(f, "max-data-per-day", "server.rate_limit.max_data_per_day")

	return cmd
}

// runServer hosts the configured resources on ln until ctx is done, then
// shuts down gracefully.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, ln net.Listener) error {
	resources, err := serveResources(cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}

	h, err := host.New(ctx, resources, host.Options{Logger: logger})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to initialize resources: %w", err)
	}

	srv := server.NewServer(cfg.ServerOptions(version.Version, logger), h)
	httpServer := srv.HTTPServer(ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting QR vision server",
			"addr", ln.Addr().String(),
			"resources", len(h.ResourceNames()))
		serveErr <- httpServer.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	logger.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := h.Close(shutdownCtx); err != nil {
		logger.Error("Resource cleanup error", "error", err)
	}
	logger.Info("Graceful shutdown completed")
	return runErr
}

// serveResources returns the configured resources, or one camera and one QR
// service built from the scan and robot settings.
func serveResources(cfg *config.Config) (host.Resources, error) {
	if len(cfg.Resources.Cameras) > 0 || len(cfg.Resources.Services) > 0 {
		return cfg.Resources, nil
	}

	cam := host.CameraConfig{Name: cfg.Robot.CameraName}
	switch cfg.Scan.Source {
	case config.SourceFile:
		cam.Type = host.CameraTypeFile
		cam.Path = cfg.Scan.Path
	case config.SourceHTTP:
		cam.Type = host.CameraTypeHTTP
		cam.URL = cfg.Scan.URL
	default:
		return host.Resources{}, errors.New("no resources configured: add a resources section or use --source file|http")
	}

	return host.Resources{
		Cameras: []host.CameraConfig{cam},
		Services: []host.ServiceConfig{{
			Name:       cfg.Robot.VisionName,
			API:        vision.APIVision.String(),
			Model:      vision.QRModel.String(),
			Attributes: cfg.QRAttributes(cam.Name),
			DependsOn:  []string{cam.Name},
		}},
	}, nil
}
