package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orientgo"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HeadMetrics holds the pan/tilt head server metrics.
type HeadMetrics struct {
	OrientRequests *prometheus.CounterVec // by result: ok, limited, invalid, rate_limited, error
	ServoAngle     *prometheus.GaugeVec   // by servo
	VideoClients   prometheus.Gauge
	StatusClients  prometheus.Gauge
	FramesDropped  prometheus.Counter
}

// NewHeadMetrics creates and registers head metrics on the given registry.
func NewHeadMetrics(reg prometheus.Registerer) *HeadMetrics {
	m := &HeadMetrics{
		OrientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "head",
			Name:      "orient_requests_total",
			Help:      "Orientation updates received, by result.",
		}, []string{"result"}),
		ServoAngle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "head",
			Name:      "servo_angle_degrees",
			Help:      "Last commanded servo angle.",
		}, []string{"servo"}),
		VideoClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "head",
			Name:      "video_clients",
			Help:      "Connected MJPEG clients.",
		}),
		StatusClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "head",
			Name:      "status_clients",
			Help:      "Connected status stream clients.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "head",
			Name:      "frames_dropped_total",
			Help:      "Video frames skipped for slow clients.",
		}),
	}

	reg.MustRegister(m.OrientRequests, m.ServoAngle, m.VideoClients, m.StatusClients, m.FramesDropped)
	return m
}

// ReporterMetrics holds the orientation reporter metrics.
type ReporterMetrics struct {
	Events          prometheus.Counter
	Throttled       prometheus.Counter
	Responses       *prometheus.CounterVec // by status code class: 2xx, 210, 4xx, 5xx
	TransportErrors prometheus.Counter
	HapticPulses    *prometheus.CounterVec // by result: ok, unsupported, error
	RequestDuration prometheus.Histogram
}

// NewReporterMetrics creates and registers reporter metrics on the given registry.
func NewReporterMetrics(reg prometheus.Registerer) *ReporterMetrics {
	m := &ReporterMetrics{
		Events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporter",
			Name:      "events_total",
			Help:      "Orientation events received from the source.",
		}),
		Throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporter",
			Name:      "throttled_total",
			Help:      "Orientation events discarded by the throttle.",
		}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporter",
			Name:      "responses_total",
			Help:      "Responses to orientation posts, by status class.",
		}, []string{"class"}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporter",
			Name:      "transport_errors_total",
			Help:      "Orientation posts that failed before a response.",
		}),
		HapticPulses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporter",
			Name:      "haptic_pulses_total",
			Help:      "Haptic feedback attempts, by result.",
		}, []string{"result"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reporter",
			Name:      "request_duration_seconds",
			Help:      "Duration of orientation posts.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.Events, m.Throttled, m.Responses, m.TransportErrors, m.HapticPulses, m.RequestDuration)
	return m
}

// StatusClass buckets an HTTP status for the responses counter.
func StatusClass(code int) string {
	switch {
	case code == 210:
		return "210"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
