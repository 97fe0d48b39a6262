// Package host builds and owns the cameras and vision services named in the
// configuration.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// Options configures a Host.
type Options struct {
	Logger *slog.Logger
	// HTTPClient is shared by HTTP cameras without their own timeout.
	HTTPClient *http.Client
}

// Host keeps the named resources of one process.
type Host struct {
	logger     *slog.Logger
	httpClient *http.Client

	mu       sync.RWMutex
	conf     Resources
	cameras  map[string]camera.Camera
	services map[string]vision.Service
}

// New builds every configured resource. On error, resources built so far
// are closed.
func New(ctx context.Context, conf Resources, opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		logger:     logger,
		httpClient: opts.HTTPClient,
		cameras:    map[string]camera.Camera{},
		services:   map[string]vision.Service{},
	}
	if err := h.Reconfigure(ctx, conf); err != nil {
		return nil, err
	}
	return h, nil
}

// Reconfigure applies conf. Cameras are rebuilt; services whose model is
// unchanged are reconfigured in place, keeping their state.
func (h *Host) Reconfigure(ctx context.Context, conf Resources) error {
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid resource configuration: %w", err)
	}

	cameras := make(map[string]camera.Camera, len(conf.Cameras))
	for _, cc := range conf.Cameras {
		cam, err := h.buildCamera(cc)
		if err != nil {
			closeCameras(ctx, cameras)
			return err
		}
		cameras[cc.Name] = cam
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	services := make(map[string]vision.Service, len(conf.Services))
	oldModels := make(map[string]string, len(h.conf.Services))
	for _, sc := range h.conf.Services {
		oldModels[sc.Name] = sc.Model
	}

	for _, sc := range conf.Services {
		rc, err := sc.resourceConfig()
		if err != nil {
			closeCameras(ctx, cameras)
			return err
		}
		deps := dependenciesFor(sc, cameras)

		if existing, ok := h.services[sc.Name]; ok && oldModels[sc.Name] == sc.Model {
			if err := existing.Reconfigure(ctx, deps, rc); err != nil {
				closeCameras(ctx, cameras)
				return fmt.Errorf("reconfigure %s: %w", sc.Name, err)
			}
			services[sc.Name] = existing
			continue
		}

		svc, err := vision.Build(ctx, deps, rc, h.logger)
		if err != nil {
			closeCameras(ctx, cameras)
			return fmt.Errorf("build %s: %w", sc.Name, err)
		}
		services[sc.Name] = svc
	}

	for name, svc := range h.services {
		if _, kept := services[name]; kept {
			continue
		}
		if err := svc.Close(ctx); err != nil {
			h.logger.Warn("Failed to close service", "service", name, "error", err)
		}
	}
	closeCameras(ctx, h.cameras)

	h.cameras = cameras
	h.services = services
	h.conf = conf
	h.logger.Info("Resources configured", "cameras", len(cameras), "services", len(services))
	return nil
}

func (h *Host) buildCamera(cc CameraConfig) (camera.Camera, error) {
	switch cc.Type {
	case CameraTypeFile:
		return camera.NewFileCamera(cc.Name, cc.Path)
	case CameraTypeHTTP:
		client := h.httpClient
		if cc.Timeout > 0 {
			client = &http.Client{Timeout: cc.Timeout}
		}
		return camera.NewHTTPCamera(cc.Name, cc.URL, client), nil
	default:
		return nil, fmt.Errorf("camera %q: unknown type %q", cc.Name, cc.Type)
	}
}

// dependenciesFor limits the cameras to the service's depends_on list and
// its implicit camera_name; with neither, every camera is visible.
func dependenciesFor(sc ServiceConfig, cameras map[string]camera.Camera) vision.Dependencies {
	names := append([]string(nil), sc.DependsOn...)
	if name, ok := sc.Attributes["camera_name"].(string); ok && name != "" {
		names = append(names, name)
	}
	deps := vision.Dependencies{}
	if len(names) == 0 {
		for n, c := range cameras {
			deps[n] = c
		}
		return deps
	}
	for _, n := range names {
		if c, ok := cameras[n]; ok {
			deps[n] = c
		}
	}
	return deps
}

func closeCameras(ctx context.Context, cameras map[string]camera.Camera) {
	for name, cam := range cameras {
		if err := cam.Close(ctx); err != nil {
			slog.Warn("Failed to close camera", "camera", name, "error", err)
		}
	}
}

// Camera returns the named camera.
func (h *Host) Camera(name string) (camera.Camera, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cam, ok := h.cameras[name]; ok {
		return cam, nil
	}
	return nil, &vision.ResourceNotFoundError{Name: vision.ResourceName{API: vision.APICamera, Name: name}}
}

// Vision returns the named vision service.
func (h *Host) Vision(name string) (vision.Service, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if svc, ok := h.services[name]; ok {
		return svc, nil
	}
	return nil, &vision.ResourceNotFoundError{Name: vision.ResourceName{API: vision.APIVision, Name: name}}
}

// ResourceNames lists every resource, sorted.
func (h *Host) ResourceNames() []vision.ResourceName {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]vision.ResourceName, 0, len(h.cameras)+len(h.services))
	for n := range h.cameras {
		names = append(names, vision.ResourceName{API: vision.APICamera, Name: n})
	}
	for n := range h.services {
		names = append(names, vision.ResourceName{API: vision.APIVision, Name: n})
	}
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
	return names
}

// Close closes every service, then every camera.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for name, svc := range h.services {
		if err := svc.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	for name, cam := range h.cameras {
		if err := cam.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	h.services = map[string]vision.Service{}
	h.cameras = map[string]camera.Camera{}
	return errors.Join(errs...)
}
