package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrvision/internal/barcode"
	"github.com/MeKo-Tech/qrvision/internal/cooldown"
	"github.com/MeKo-Tech/qrvision/internal/preprocess"
	"github.com/MeKo-Tech/qrvision/internal/server"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// Frame sources for watch and scan.
const (
	SourceRemote = "remote"
	SourceHTTP   = "http"
	SourceFile   = "file"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validOutputFormats = []string{"text", "json", "csv", "yaml", "yml"}
	validSources       = []string{SourceRemote, SourceHTTP, SourceFile}
	validTriggerModes  = []string{vision.TriggerOpen, vision.TriggerLog, vision.TriggerNone}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	pre := preprocess.DefaultOptions()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Robot: RobotConfig{
			Timeout:    30 * time.Second,
			CameraName: "camera-1",
			VisionName: "vision-1",
		},
		Preprocess: PreprocessConfig{
			Enabled:   true,
			Equalize:  pre.Equalize,
			Threshold: int(pre.Threshold),
			Scale:     pre.Scale,
		},
		Detection: DetectionConfig{
			Formats:    []string{barcode.FormatQR.String()},
			TryHarder:  false,
			ClampBoxes: false,
		},
		Cooldown: CooldownConfig{
			Period:   cooldown.DefaultPeriod,
			Capacity: cooldown.DefaultCapacity,
		},
		Trigger: TriggerConfig{
			Mode: vision.TriggerOpen,
		},
		Scan: ScanConfig{
			Source:        SourceRemote,
			Interval:      time.Second,
			ExitOnTrigger: false,
		},
		Output: OutputConfig{
			Format:          "text",
			OverlayBoxColor: "#00FF00",
		},
		Upload: UploadConfig{
			Limit: 20,
			Tags:  []string{"qr"},
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     32,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
			DataDir:         "data",
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 120,
				RequestsPerHour:   3000,
			},
		},
	}
}

// Validate validates the configuration and returns all problems found.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log level: %s (must be one of: %s)",
			c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	if c.Output.Format != "" && !slices.Contains(validOutputFormats, c.Output.Format) {
		errs = append(errs, fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(validOutputFormats, ", ")))
	}
	if !slices.Contains(validSources, c.Scan.Source) {
		errs = append(errs, fmt.Errorf("invalid scan source: %s (must be one of: %s)",
			c.Scan.Source, strings.Join(validSources, ", ")))
	}
	if c.Scan.Interval <= 0 {
		errs = append(errs, fmt.Errorf("invalid scan interval: %s (must be positive)", c.Scan.Interval))
	}
	if !slices.Contains(validTriggerModes, c.Trigger.Mode) {
		errs = append(errs, fmt.Errorf("invalid trigger mode: %s (must be one of: %s)",
			c.Trigger.Mode, strings.Join(validTriggerModes, ", ")))
	}

	if c.Preprocess.Threshold < 0 || c.Preprocess.Threshold > 255 {
		errs = append(errs, fmt.Errorf("invalid preprocess threshold: %d (must be between 0 and 255)", c.Preprocess.Threshold))
	}
	if c.Preprocess.Scale <= 0 || c.Preprocess.Scale > 8 {
		errs = append(errs, fmt.Errorf("invalid preprocess scale: %g (must be in (0, 8])", c.Preprocess.Scale))
	}
	if _, err := barcode.ParseFormats(c.Detection.Formats); err != nil {
		errs = append(errs, fmt.Errorf("invalid detection formats: %w", err))
	}
	if c.Cooldown.Period < 0 {
		errs = append(errs, fmt.Errorf("invalid cooldown period: %s (must not be negative)", c.Cooldown.Period))
	}
	if c.Cooldown.Capacity < 0 {
		errs = append(errs, fmt.Errorf("invalid cooldown capacity: %d (must not be negative)", c.Cooldown.Capacity))
	}
	if c.Upload.Limit < 0 {
		errs = append(errs, fmt.Errorf("invalid upload limit: %d (must not be negative)", c.Upload.Limit))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB))
	}
	if c.Server.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec))
	}
	if (c.Server.APIKey == "") != (c.Server.APIKeyID == "") {
		errs = append(errs, errors.New("server.api_key and server.api_key_id must be set together"))
	}

	if len(c.Resources.Cameras) > 0 || len(c.Resources.Services) > 0 {
		if err := c.Resources.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("invalid resources: %w", err))
		}
	}

	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level. Verbose forces debug.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// QRAttributes returns vision service attributes built from the pipeline
// sections, bound to cameraName.
func (c *Config) QRAttributes(cameraName string) map[string]any {
	return map[string]any{
		"camera_name":       cameraName,
		"preprocess":        c.Preprocess.Enabled,
		"equalize":          c.Preprocess.Equalize,
		"threshold":         c.Preprocess.Threshold,
		"scale":             c.Preprocess.Scale,
		"formats":           slices.Clone(c.Detection.Formats),
		"try_harder":        c.Detection.TryHarder,
		"clamp_boxes":       c.Detection.ClampBoxes,
		"cooldown_period":   c.Cooldown.Period.String(),
		"cooldown_capacity": c.Cooldown.Capacity,
		"trigger":           c.Trigger.Mode,
	}
}

// Addr returns the listen address of the server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ServerOptions converts the server section to server.Config.
func (c *Config) ServerOptions(version string, logger *slog.Logger) server.Config {
	return server.Config{
		CORSOrigin:     c.Server.CORSOrigin,
		MaxUploadMB:    int64(c.Server.MaxUploadMB),
		RequestTimeout: time.Duration(c.Server.TimeoutSec) * time.Second,
		DataDir:        c.Server.DataDir,
		APIKey:         c.Server.APIKey,
		APIKeyID:       c.Server.APIKeyID,
		OverlayEnabled: c.Server.OverlayEnabled,
		RateLimit: server.RateLimitConfig{
			Enabled:           c.Server.RateLimit.Enabled,
			RequestsPerMinute: c.Server.RateLimit.RequestsPerMinute,
			RequestsPerHour:   c.Server.RateLimit.RequestsPerHour,
			RequestsPerDay:    c.Server.RateLimit.RequestsPerDay,
			MaxDataPerDay:     c.Server.RateLimit.MaxDataPerDay,
		},
		Version: version,
		Logger:  logger,
	}
}
