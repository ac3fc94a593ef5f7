// Package metrics exposes Prometheus counters for preview publishing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder captures publish and sweep metrics.
type Recorder interface {
	ObservePublish(outcome, kind string, durationSeconds float64)
	AddArtifactBytes(n int64)
	ObserveSweep(dryRun bool, deleted, busy int, freedBytes int64, err error)
}

// RequestRecorder captures inbound HTTP request metrics.
type RequestRecorder interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Recorder and RequestRecorder without emitting anything.
type Noop struct{}

func (Noop) ObservePublish(string, string, float64)         {}
func (Noop) AddArtifactBytes(int64)                         {}
func (Noop) ObserveSweep(bool, int, int, int64, error)      {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Recorder and RequestRecorder backed by Prometheus.
type Prom struct {
	publishes      *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec
	artifactBytes  prometheus.Counter
	sweeps         *prometheus.CounterVec
	sweptPreviews  prometheus.Counter
	busyPreviews   prometheus.Counter
	freedBytes     prometheus.Counter
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// NewProm builds the collectors and registers them with reg, or with the
// default registerer when reg is nil. It panics on duplicate registration.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Preview publishes by outcome and failure kind",
		}, []string{"outcome", "kind"}),
		publishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Preview publish latency by outcome",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		artifactBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_bytes_total",
			Help:      "Bytes of artifact archives downloaded",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Retention sweeps by status",
		}, []string{"status"}),
		sweptPreviews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_previews_total",
			Help:      "Expired previews deleted by retention sweeps",
		}),
		busyPreviews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_previews_total",
			Help:      "Previews skipped by sweeps because a publish held them",
		}),
		freedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_bytes_total",
			Help:      "Bytes freed by retention sweeps",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		p.publishes, p.publishLatency, p.artifactBytes,
		p.sweeps, p.sweptPreviews, p.busyPreviews, p.freedBytes,
		p.requests, p.requestLatency,
	)
	return p
}

// ObservePublish counts a finished publish. kind is empty on success.
func (p *Prom) ObservePublish(outcome, kind string, durationSeconds float64) {
	p.publishes.WithLabelValues(outcome, kind).Inc()
	p.publishLatency.WithLabelValues(outcome).Observe(durationSeconds)
}

func (p *Prom) AddArtifactBytes(n int64) {
	if n > 0 {
		p.artifactBytes.Add(float64(n))
	}
}

// ObserveSweep counts a finished sweep. Dry runs count as sweeps but do not
// add to the deleted or freed totals.
func (p *Prom) ObserveSweep(dryRun bool, deleted, busy int, freedBytes int64, err error) {
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case dryRun:
		status = "dry_run"
	}
	p.sweeps.WithLabelValues(status).Inc()
	p.busyPreviews.Add(float64(busy))
	if dryRun {
		return
	}
	p.sweptPreviews.Add(float64(deleted))
	if freedBytes > 0 {
		p.freedBytes.Add(float64(freedBytes))
	}
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.requestLatency.WithLabelValues(method, route).Observe(durationSeconds)
}

// StatusLabel formats an HTTP status code as a label value.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}

// Handler returns an HTTP handler for /metrics serving g, or the default
// gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
