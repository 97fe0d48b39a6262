package host

import (
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// Camera types.
const (
	CameraTypeFile = "file"
	CameraTypeHTTP = "http"
)

// CameraConfig describes one camera.
type CameraConfig struct {
	Name    string        `mapstructure:"name"    yaml:"name"              json:"name"`
	Type    string        `mapstructure:"type"    yaml:"type"              json:"type"`
	Path    string        `mapstructure:"path"    yaml:"path,omitempty"    json:"path,omitempty"`
	URL     string        `mapstructure:"url"     yaml:"url,omitempty"     json:"url,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ServiceConfig describes one vision service.
type ServiceConfig struct {
	Name       string         `mapstructure:"name"       yaml:"name"                 json:"name"`
	API        string         `mapstructure:"api"        yaml:"api,omitempty"        json:"api,omitempty"`
	Model      string         `mapstructure:"model"      yaml:"model"                json:"model"`
	Attributes map[string]any `mapstructure:"attributes" yaml:"attributes,omitempty" json:"attributes,omitempty"`
	DependsOn  []string       `mapstructure:"depends_on" yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Resources is the full resource configuration of a host.
type Resources struct {
	Cameras  []CameraConfig  `mapstructure:"cameras"  yaml:"cameras"  json:"cameras"`
	Services []ServiceConfig `mapstructure:"services" yaml:"services" json:"services"`
}

// Validate checks names, types and references.
func (r Resources) Validate() error {
	var errs []error
	cameras := make(map[string]struct{}, len(r.Cameras))
	for i, c := range r.Cameras {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("cameras[%d]: name is required", i))
			continue
		}
		if _, dup := cameras[c.Name]; dup {
			errs = append(errs, fmt.Errorf("camera %q: duplicate name", c.Name))
		}
		cameras[c.Name] = struct{}{}
		switch c.Type {
		case CameraTypeFile:
			if c.Path == "" {
				errs = append(errs, fmt.Errorf("camera %q: path is required", c.Name))
			}
		case CameraTypeHTTP:
			if c.URL == "" {
				errs = append(errs, fmt.Errorf("camera %q: url is required", c.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("camera %q: unknown type %q", c.Name, c.Type))
		}
	}

	services := make(map[string]struct{}, len(r.Services))
	for i, s := range r.Services {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("services[%d]: name is required", i))
			continue
		}
		if _, dup := services[s.Name]; dup {
			errs = append(errs, fmt.Errorf("service %q: duplicate name", s.Name))
		}
		services[s.Name] = struct{}{}
		if _, err := s.resourceConfig(); err != nil {
			errs = append(errs, fmt.Errorf("service %q: %w", s.Name, err))
		}
		for _, dep := range s.DependsOn {
			if _, ok := cameras[dep]; !ok {
				errs = append(errs, fmt.Errorf("service %q: unknown camera %q in depends_on", s.Name, dep))
			}
		}
	}
	return errors.Join(errs...)
}

// resourceConfig converts the service entry to a vision.ResourceConfig.
func (s ServiceConfig) resourceConfig() (vision.ResourceConfig, error) {
	model, err := vision.ParseModel(s.Model)
	if err != nil {
		return vision.ResourceConfig{}, err
	}
	api := vision.APIVision
	if s.API != "" {
		if api, err = vision.ParseAPI(s.API); err != nil {
			return vision.ResourceConfig{}, err
		}
	}
	return vision.ResourceConfig{
		Name:       s.Name,
		API:        api,
		Model:      model,
		Attributes: s.Attributes,
		DependsOn:  s.DependsOn,
	}, nil
}
