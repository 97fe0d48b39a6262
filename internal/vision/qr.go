package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/qrvision/internal/barcode"
	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/cooldown"
	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/preprocess"
	"github.com/MeKo-Tech/qrvision/internal/trigger"
)

// QRModel is the model name the QR service registers under.
var QRModel = Model{Family: ModelFamily{Namespace: "joyce", Name: "vision"}, Name: "pyzbar"}

// cameraMimeType is requested from every camera.
const cameraMimeType = camera.MimeJPEG

func init() {
	Register(APIVision, QRModel, Registration{
		Constructor: func(ctx context.Context, deps Dependencies, conf ResourceConfig, logger *slog.Logger) (Service, error) {
			return NewQRService(ctx, deps, conf, WithLogger(logger))
		},
		AttributeValidator: ValidateQRConfig,
	})
}

// QRService detects QR codes in camera frames and opens URL payloads,
// at most once per payload per cooldown window.
type QRService struct {
	name    string
	logger  *slog.Logger
	backend barcode.Backend
	now     func() time.Time

	// opener overrides the one chosen from the trigger attribute.
	opener trigger.Opener

	mu       sync.RWMutex
	deps     Dependencies
	settings pipelineSettings
	trigger  *trigger.Trigger
	cooldown *cooldown.Cache
}

// QROption configures a QRService.
type QROption func(*QRService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) QROption {
	return func(s *QRService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOpener forces the URL opener regardless of the trigger attribute,
// unless the attribute is "none".
func WithOpener(o trigger.Opener) QROption {
	return func(s *QRService) { s.opener = o }
}

// WithBackend replaces the barcode decoder.
func WithBackend(b barcode.Backend) QROption {
	return func(s *QRService) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithClock replaces the clock used for cooldown decisions.
func WithClock(now func() time.Time) QROption {
	return func(s *QRService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewQRService creates and configures a QR service.
func NewQRService(ctx context.Context, deps Dependencies, conf ResourceConfig, opts ...QROption) (*QRService, error) {
	s := &QRService{
		name:    conf.Name,
		logger:  slog.Default(),
		backend: barcode.NewBackend(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reconfigure(ctx, deps, conf); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the resource name.
func (s *QRService) Name() string { return s.name }

// Reconfigure swaps dependencies and pipeline settings. The cooldown history
// is kept unless the window or capacity changes.
func (s *QRService) Reconfigure(_ context.Context, deps Dependencies, conf ResourceConfig) error {
	attrs, err := ParseQRAttributes(conf.Attributes)
	if err != nil {
		return err
	}
	settings, err := attrs.resolve()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cooldown == nil ||
		s.settings.cooldownPeriod != settings.cooldownPeriod ||
		s.settings.cooldownCapacity != settings.cooldownCapacity {
		s.cooldown = cooldown.New(settings.cooldownPeriod, settings.cooldownCapacity,
			cooldown.WithClock(s.now))
	}
	if s.trigger == nil || s.settings.trigger != settings.trigger {
		s.trigger = trigger.New(s.resolveOpener(settings.trigger), s.logger)
	}

	s.deps = make(Dependencies, len(deps))
	for name, cam := range deps {
		s.deps[name] = cam
	}
	s.settings = settings

	s.logger.Debug("Vision service configured",
		"cameras", s.deps.Names(),
		"trigger", settings.trigger,
		"cooldown", settings.cooldownPeriod,
		"preprocess", settings.preprocess)
	return nil
}

func (s *QRService) resolveOpener(mode string) trigger.Opener {
	switch mode {
	case TriggerNone:
		return nil
	case TriggerLog:
		if s.opener != nil {
			return s.opener
		}
		return trigger.LogOpener{Logger: s.logger}
	}
	if s.opener != nil {
		return s.opener
	}
	opener, err := trigger.NewSystemOpener()
	if err != nil {
		s.logger.Warn("No system URL opener, logging URLs instead", "error", err)
		return trigger.LogOpener{Logger: s.logger}
	}
	return opener
}

// DetectionsFromCamera fetches a frame from the named camera and detects
// QR codes in it. An empty name uses the configured default camera.
func (s *QRService) DetectionsFromCamera(ctx context.Context, cameraName string, _ map[string]any) ([]detection.Detection, error) {
	img, _, err := s.frame(ctx, cameraName)
	if err != nil {
		return nil, err
	}
	return s.detect(ctx, img)
}

// Detections detects QR codes in img.
func (s *QRService) Detections(ctx context.Context, img image.Image, _ map[string]any) ([]detection.Detection, error) {
	if img == nil {
		return nil, &camera.ImageError{Operation: "decode", Err: errors.New("nil image")}
	}
	return s.detect(ctx, img)
}

// Classifications is not supported and always returns an empty list.
func (s *QRService) Classifications(context.Context, image.Image, int, map[string]any) ([]Classification, error) {
	return []Classification{}, nil
}

// ClassificationsFromCamera is not supported and always returns an empty list.
func (s *QRService) ClassificationsFromCamera(context.Context, string, int, map[string]any) ([]Classification, error) {
	return []Classification{}, nil
}

// ObjectPointClouds is not supported and always returns an empty list.
func (s *QRService) ObjectPointClouds(context.Context, string, map[string]any) ([]PointCloudObject, error) {
	return []PointCloudObject{}, nil
}

// CaptureAllFromCamera grabs one frame and returns whichever of the frame
// and its detections were requested.
func (s *QRService) CaptureAllFromCamera(
	ctx context.Context,
	cameraName string,
	opts CaptureOptions,
	_ map[string]any,
) (*CaptureAllResult, error) {
	img, raw, err := s.frame(ctx, cameraName)
	if err != nil {
		return nil, err
	}
	result := &CaptureAllResult{}
	if opts.ReturnImage {
		result.Image = &raw
	}
	if opts.ReturnDetections {
		dets, err := s.detect(ctx, img)
		if err != nil {
			return nil, err
		}
		result.Detections = dets
	}
	if opts.ReturnClassifications {
		result.Classifications = []Classification{}
	}
	if opts.ReturnObjectPointClouds {
		result.Objects = []PointCloudObject{}
	}
	return result, nil
}

// Properties reports detection support only.
func (s *QRService) Properties(context.Context, map[string]any) (Properties, error) {
	return Properties{
		ClassificationSupported: false,
		DetectionSupported:      true,
		ObjectPCDsSupported:     false,
	}, nil
}

// DoCommand accepts no commands and returns an empty result.
func (s *QRService) DoCommand(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

// Close drops the camera dependencies. Cameras are owned by the host.
func (s *QRService) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps = Dependencies{}
	return nil
}

// frame fetches and decodes one camera frame.
func (s *QRService) frame(ctx context.Context, cameraName string) (image.Image, camera.Image, error) {
	s.mu.RLock()
	if cameraName == "" {
		cameraName = s.settings.cameraName
	}
	cam, err := s.deps.Camera(cameraName)
	s.mu.RUnlock()
	if err != nil {
		return nil, camera.Image{}, err
	}

	raw, err := cam.Image(ctx, cameraMimeType)
	if err != nil {
		cameraErrorsTotal.WithLabelValues(s.name, cameraName).Inc()
		return nil, camera.Image{}, fmt.Errorf("failed to get image from camera %s: %w", cameraName, err)
	}
	img, err := camera.DecodeImage(raw)
	if err != nil {
		cameraErrorsTotal.WithLabelValues(s.name, cameraName).Inc()
		return nil, camera.Image{}, fmt.Errorf("failed to decode image from camera %s: %w", cameraName, err)
	}
	return img, raw, nil
}

// detect runs preprocessing, decoding, rescaling and triggering on img.
func (s *QRService) detect(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	s.mu.RLock()
	settings := s.settings
	trig := s.trigger
	cache := s.cooldown
	s.mu.RUnlock()

	start := time.Now()
	origSize := detection.Size(img.Bounds())
	work := img
	if settings.preprocess {
		work = preprocess.Process(img, settings.preprocessOpts)
	}
	procSize := detection.Size(work.Bounds())

	results, err := s.backend.Decode(ctx, work, settings.decodeOpts)
	decodeDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		decodeErrorsTotal.WithLabelValues(s.name).Inc()
		s.logger.Warn("QR decoding failed", "error", err)
		return []detection.Detection{}, nil
	}
	if len(results) == 0 {
		s.logger.Info("No QR Code detected")
		return []detection.Detection{}, nil
	}

	rescaler := detection.Rescaler{Clamp: settings.clamp}
	dets := make([]detection.Detection, 0, len(results))
	for _, r := range results {
		s.logger.Info("QR Code detected", "payload", r.Value)
		detectionsTotal.WithLabelValues(s.name).Inc()

		s.maybeTrigger(ctx, trig, cache, settings.trigger, r.Value)

		box := rescaler.Rescale(r.BBox, origSize, procSize)
		dets = append(dets, detection.New(box.Add(img.Bounds().Min), r.Value))
	}
	return dets, nil
}

func (s *QRService) maybeTrigger(ctx context.Context, trig *trigger.Trigger, cache *cooldown.Cache, mode, payload string) {
	if mode == TriggerNone {
		triggersTotal.WithLabelValues(s.name, "disabled").Inc()
		return
	}
	if !cache.ShouldTrigger(payload, s.now()) {
		triggersTotal.WithLabelValues(s.name, "suppressed").Inc()
		s.logger.Debug("Trigger suppressed by cooldown", "payload", payload)
		return
	}
	if trig.Fire(ctx, payload) {
		triggersTotal.WithLabelValues(s.name, "fired").Inc()
		return
	}
	triggersTotal.WithLabelValues(s.name, "failed").Inc()
}

// CooldownLen returns the number of payloads remembered by the cooldown cache.
func (s *QRService) CooldownLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cooldown.Len()
}

// SweepCooldown drops expired cooldown entries.
func (s *QRService) SweepCooldown() int {
	s.mu.RLock()
	cache := s.cooldown
	s.mu.RUnlock()
	return cache.Sweep(s.now())
}
