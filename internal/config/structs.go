//nolint:lll
package config

import (
	"time"

	"github.com/MeKo-Tech/qrvision/internal/host"
)

// Config represents the complete configuration for qrvision.
// It includes settings for all commands (serve, watch, scan, decode, upload)
// and supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Remote robot connection (watch, scan, upload)
	Robot RobotConfig `mapstructure:"robot" yaml:"robot" json:"robot"`

	// QR pipeline settings shared by local services
	Preprocess PreprocessConfig `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Detection  DetectionConfig  `mapstructure:"detection" yaml:"detection" json:"detection"`
	Cooldown   CooldownConfig   `mapstructure:"cooldown" yaml:"cooldown" json:"cooldown"`
	Trigger    TriggerConfig    `mapstructure:"trigger" yaml:"trigger" json:"trigger"`

	// Command settings
	Scan   ScanConfig   `mapstructure:"scan" yaml:"scan" json:"scan"`
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`
	Upload UploadConfig `mapstructure:"upload" yaml:"upload" json:"upload"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Resources hosted by serve
	Resources host.Resources `mapstructure:"resources" yaml:"resources" json:"resources"`
}

// RobotConfig locates the remote host and its resources.
type RobotConfig struct {
	Address    string        `mapstructure:"address" yaml:"address" json:"address"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	APIKeyID   string        `mapstructure:"api_key_id" yaml:"api_key_id" json:"api_key_id"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	CameraName string        `mapstructure:"camera_name" yaml:"camera_name" json:"camera_name"`
	VisionName string        `mapstructure:"vision_name" yaml:"vision_name" json:"vision_name"`
	PartID     string        `mapstructure:"part_id" yaml:"part_id" json:"part_id"`
}

// PreprocessConfig controls frame preprocessing before decoding.
type PreprocessConfig struct {
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Equalize  bool    `mapstructure:"equalize" yaml:"equalize" json:"equalize"`
	Threshold int     `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	Scale     float64 `mapstructure:"scale" yaml:"scale" json:"scale"`
}

// DetectionConfig controls decoding and box reporting.
type DetectionConfig struct {
	Formats    []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	TryHarder  bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	ClampBoxes bool     `mapstructure:"clamp_boxes" yaml:"clamp_boxes" json:"clamp_boxes"`
}

// CooldownConfig controls per-payload trigger suppression.
type CooldownConfig struct {
	Period   time.Duration `mapstructure:"period" yaml:"period" json:"period"`
	Capacity int           `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
}

// TriggerConfig selects what happens to URL payloads.
type TriggerConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// ScanConfig contains frame source and loop settings for watch and scan.
type ScanConfig struct {
	Source        string        `mapstructure:"source" yaml:"source" json:"source"`
	URL           string        `mapstructure:"url" yaml:"url" json:"url"`
	Path          string        `mapstructure:"path" yaml:"path" json:"path"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	ExitOnTrigger bool          `mapstructure:"exit_on_trigger" yaml:"exit_on_trigger" json:"exit_on_trigger"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format          string `mapstructure:"format" yaml:"format" json:"format"`
	File            string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir      string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	OverlayBoxColor string `mapstructure:"overlay_box_color" yaml:"overlay_box_color" json:"overlay_box_color"`
}

// UploadConfig contains batch upload settings.
type UploadConfig struct {
	Limit int      `mapstructure:"limit" yaml:"limit" json:"limit"`
	Tags  []string `mapstructure:"tags" yaml:"tags" json:"tags"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled  bool            `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
	DataDir         string          `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	APIKey          string          `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	APIKeyID        string          `mapstructure:"api_key_id" yaml:"api_key_id" json:"api_key_id"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int   `mapstructure:"requests_per_day" yaml:"requests_per_day" json:"requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}
