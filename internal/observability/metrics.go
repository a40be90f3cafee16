// Package observability exposes prometheus counters/histograms/gauges
// for every core component, following the teacher's promauto idiom.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blade",
		Name:      "iterations_total",
		Help:      "Total number of completed master/slave iterations",
	}, []string{"node", "outcome"})

	IterationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blade",
		Name:      "iteration_duration_seconds",
		Help:      "Duration of a full capture/process/exchange iteration",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"node"})

	KeypointsDetected = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blade",
		Name:      "keypoints_detected",
		Help:      "Number of keypoints detected per frame",
		Buckets:   prometheus.LinearBuckets(0, 10, 20),
	}, []string{"node"})

	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blade",
		Name:      "stage_errors_total",
		Help:      "Total pipeline-stage errors, tagged by error kind",
	}, []string{"stage", "kind"})

	PointsReconstructed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blade",
		Name:      "points_reconstructed",
		Help:      "Number of 3D points surviving stereopsis per iteration",
		Buckets:   prometheus.LinearBuckets(0, 20, 20),
	}, []string{})

	HeadingRho = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blade",
		Name:      "heading_rho_px",
		Help:      "Most recent heading rho, in pixels",
	})

	HeadingTheta = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blade",
		Name:      "heading_theta_radians",
		Help:      "Most recent heading theta, in radians",
	})

	TowardsTip = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blade",
		Name:      "towards_tip",
		Help:      "1 if the mission is currently travelling towards the tip, else 0",
	})

	ProtocolRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blade",
		Name:      "protocol_request_duration_seconds",
		Help:      "Round-trip duration of a master->slave protocol request",
		Buckets:   prometheus.DefBuckets,
	}, []string{"request"})

	ProtocolDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blade",
		Name:      "protocol_disconnects_total",
		Help:      "Total number of protocol-level disconnects",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blade",
		Name:      "http_request_duration_seconds",
		Help:      "Diagnostics HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blade",
		Name:      "ws_connections",
		Help:      "Number of active telemetry WebSocket connections",
	})
)
