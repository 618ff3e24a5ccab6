// Package metrics provides custom Prometheus metrics for the camera and
// detection pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// VideoCoreMetrics contains all Prometheus metrics related to session
// lifecycle, inference ticks, and alerting.
type VideoCoreMetrics struct {
	SessionsActive       prometheus.Gauge       // currently running detector sessions
	SessionStartsTotal   *prometheus.CounterVec // session starts by outcome
	SessionRestartsTotal *prometheus.CounterVec // forced restarts by reason
	SessionFailovers     prometheus.Counter     // automatic device failovers

	TicksTotal        *prometheus.CounterVec   // inference ticks by status
	InferenceDuration *prometheus.HistogramVec // per-inference latency by camera

	DetectionsTotal *prometheus.CounterVec // detections by class
	AlertsTotal     prometheus.Counter     // alert sounds actually fired
	AlertsThrottled prometheus.Counter     // alerts suppressed by the throttle

	EnumerationRetries prometheus.Counter // device enumeration retry attempts

	registry *prometheus.Registry
}

// NewVideoCoreMetrics creates and registers the pipeline metrics on the
// given registry.
func NewVideoCoreMetrics(registry *prometheus.Registry) (*VideoCoreMetrics, error) {
	m := &VideoCoreMetrics{registry: registry}

	m.SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videocore_sessions_active",
		Help: "Number of currently running detector sessions",
	})
	m.SessionStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocore_session_starts_total",
		Help: "Total session start attempts by outcome",
	}, []string{"status"}) // status: success, error
	m.SessionRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocore_session_restarts_total",
		Help: "Total forced session restarts by reason",
	}, []string{"reason"}) // reason: inference_failures, device_switch, hardware_error
	m.SessionFailovers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videocore_session_failovers_total",
		Help: "Total automatic failovers to another camera device",
	})

	m.TicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocore_ticks_total",
		Help: "Total inference ticks by status",
	}, []string{"status"}) // status: ok, skipped, error
	m.InferenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "videocore_inference_duration_seconds",
		Help:    "Model inference latency per tick",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"camera"})

	m.DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocore_detections_total",
		Help: "Total detections by object class",
	}, []string{"class"})
	m.AlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videocore_alerts_total",
		Help: "Total alert sounds fired",
	})
	m.AlertsThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videocore_alerts_throttled_total",
		Help: "Total alerts suppressed by the rate limiter",
	})

	m.EnumerationRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videocore_enumeration_retries_total",
		Help: "Total device enumeration retry attempts",
	})

	collectors := []prometheus.Collector{
		m.SessionsActive, m.SessionStartsTotal, m.SessionRestartsTotal,
		m.SessionFailovers, m.TicksTotal, m.InferenceDuration,
		m.DetectionsTotal, m.AlertsTotal, m.AlertsThrottled,
		m.EnumerationRetries,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register videocore metrics: %w", err)
		}
	}

	return m, nil
}
