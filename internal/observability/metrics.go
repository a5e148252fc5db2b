package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persontrack",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed per camera",
	}, []string{"camera"})

	PeopleDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persontrack",
		Name:      "people_detected_total",
		Help:      "Total number of person detections accepted after NMS",
	}, []string{"camera"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "persontrack",
		Name:      "inference_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"stage"})

	CameraBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "persontrack",
		Name:      "camera_backlog",
		Help:      "Consecutive capture errors currently observed for a camera",
	}, []string{"camera"})

	ActiveGlobalIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "persontrack",
		Name:      "active_global_identities",
		Help:      "Number of currently live global identities",
	})

	GlobalIdentitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "persontrack",
		Name:      "global_identities_created_total",
		Help:      "Total number of global identities ever created",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "persontrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "persontrack",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
