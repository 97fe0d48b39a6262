package vision

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/MeKo-Tech/qrvision/internal/barcode"
	"github.com/MeKo-Tech/qrvision/internal/cooldown"
	"github.com/MeKo-Tech/qrvision/internal/preprocess"
)

// Trigger modes.
const (
	TriggerOpen = "open" // hand URLs to the system opener
	TriggerLog  = "log"  // log URLs only
	TriggerNone = "none" // never trigger
)

// QRAttributes are the user-settable attributes of the QR service.
type QRAttributes struct {
	// CameraName is used when a call does not name a camera.
	CameraName string `mapstructure:"camera_name"`

	Preprocess *bool    `mapstructure:"preprocess"`
	Equalize   *bool    `mapstructure:"equalize"`
	Threshold  *int     `mapstructure:"threshold"`
	Scale      *float64 `mapstructure:"scale"`

	Formats   []string `mapstructure:"formats"`
	TryHarder bool     `mapstructure:"try_harder"`

	ClampBoxes bool `mapstructure:"clamp_boxes"`

	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	CooldownCapacity int           `mapstructure:"cooldown_capacity"`

	Trigger string `mapstructure:"trigger"`
}

// pipelineSettings is the resolved, validated form of QRAttributes.
type pipelineSettings struct {
	cameraName       string
	preprocess       bool
	preprocessOpts   preprocess.Options
	decodeOpts       barcode.Options
	clamp            bool
	cooldownPeriod   time.Duration
	cooldownCapacity int
	trigger          string
}

// ParseQRAttributes decodes raw attributes. Durations accept Go duration
// strings ("5s") or plain seconds.
func ParseQRAttributes(raw map[string]any) (QRAttributes, error) {
	var attrs QRAttributes
	if len(raw) == 0 {
		return attrs, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &attrs,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.DecodeHookFuncType(secondsToDurationHook),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return attrs, err
	}
	if err := dec.Decode(raw); err != nil {
		return attrs, fmt.Errorf("invalid attributes: %w", err)
	}
	return attrs, nil
}

// secondsToDurationHook turns a bare number into seconds for duration fields.
func secondsToDurationHook(_, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

func (a QRAttributes) resolve() (pipelineSettings, error) {
	s := pipelineSettings{
		cameraName:       a.CameraName,
		preprocess:       true,
		preprocessOpts:   preprocess.DefaultOptions(),
		decodeOpts:       barcode.DefaultOptions(),
		clamp:            a.ClampBoxes,
		cooldownPeriod:   cooldown.DefaultPeriod,
		cooldownCapacity: cooldown.DefaultCapacity,
		trigger:          TriggerOpen,
	}
	if a.Preprocess != nil {
		s.preprocess = *a.Preprocess
	}
	if a.Equalize != nil {
		s.preprocessOpts.Equalize = *a.Equalize
	}
	if a.Threshold != nil {
		if *a.Threshold < 0 || *a.Threshold > 255 {
			return s, fmt.Errorf("threshold must be within 0..255, got %d", *a.Threshold)
		}
		s.preprocessOpts.Threshold = uint8(*a.Threshold)
	}
	if a.Scale != nil {
		if *a.Scale <= 0 || *a.Scale > 8 {
			return s, fmt.Errorf("scale must be within (0, 8], got %g", *a.Scale)
		}
		s.preprocessOpts.Scale = *a.Scale
	}
	if len(a.Formats) > 0 {
		formats, err := barcode.ParseFormats(a.Formats)
		if err != nil {
			return s, err
		}
		s.decodeOpts.Formats = formats
	}
	s.decodeOpts.TryHarder = a.TryHarder
	if a.CooldownPeriod < 0 {
		return s, fmt.Errorf("cooldown_period must not be negative")
	}
	if a.CooldownPeriod > 0 {
		s.cooldownPeriod = a.CooldownPeriod
	}
	if a.CooldownCapacity < 0 {
		return s, fmt.Errorf("cooldown_capacity must not be negative")
	}
	if a.CooldownCapacity > 0 {
		s.cooldownCapacity = a.CooldownCapacity
	}
	if a.Trigger != "" {
		switch mode := strings.ToLower(a.Trigger); mode {
		case TriggerOpen, TriggerLog, TriggerNone:
			s.trigger = mode
		default:
			return s, fmt.Errorf("unknown trigger mode %q (want open, log or none)", a.Trigger)
		}
	}
	return s, nil
}

// ValidateQRConfig checks the attributes of a QR service configuration and
// returns its implicit camera dependency, if any.
func ValidateQRConfig(conf ResourceConfig) ([]string, error) {
	attrs, err := ParseQRAttributes(conf.Attributes)
	if err != nil {
		return nil, err
	}
	if _, err := attrs.resolve(); err != nil {
		return nil, err
	}
	if attrs.CameraName != "" {
		return []string{attrs.CameraName}, nil
	}
	return nil, nil
}
