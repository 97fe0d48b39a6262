package vision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrvision_detections_total",
			Help: "Total number of decoded QR symbols",
		},
		[]string{"service"},
	)

	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrvision_triggers_total",
			Help: "Trigger decisions for decoded payloads",
		},
		[]string{"service", "result"}, // result: fired, failed, suppressed, disabled
	)

	decodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrvision_decode_errors_total",
			Help: "Total number of failed decode attempts",
		},
		[]string{"service"},
	)

	decodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qrvision_decode_duration_seconds",
			Help:    "Time spent preprocessing and decoding one frame",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service"},
	)

	cameraErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrvision_camera_errors_total",
			Help: "Total number of failed camera frame fetches",
		},
		[]string{"service", "camera"},
	)
)
