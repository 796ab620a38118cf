package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every Prometheus instrument the engine exposes at
// /metrics, plus the in-process rolling-percentile stage window surfaced
// through /v1/health-adjacent diagnostics.
type Metrics struct {
	JobEvents        *prometheus.CounterVec
	ActiveJobs        prometheus.Gauge
	SynthDuration     prometheus.Histogram
	PostProcessDuration prometheus.Histogram
	WSConnections     prometheus.Gauge
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec
	WarmupRuns        *prometheus.CounterVec
	ActivationEvents  *prometheus.CounterVec
	stageWindow       *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		JobEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_total",
			Help:      "Speak job lifecycle events by terminal outcome (started, done, canceled, error).",
		}, []string{"event"}),
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of speak jobs with an unfired done signal (0 or 1).",
		}),
		SynthDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synth_chunk_duration_ms",
			Help:      "Per-chunk synthesize_chunk latency in milliseconds.",
			Buckets:   []float64{20, 50, 100, 200, 400, 700, 1200, 2000, 4000, 8000},
		}),
		PostProcessDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "post_process_duration_ms",
			Help:      "Per-chunk audio post-processing latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_stream_connections",
			Help:      "Currently open /v1/stream/{job_id} WebSocket connections.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket stream frames written, by event type.",
		}, []string{"type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket stream write errors by reason.",
		}, []string{"reason"}),
		WarmupRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmup_runs_total",
			Help:      "Warmup attempts by resulting status (ready, error).",
		}, []string{"status"}),
		ActivationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_activation_total",
			Help:      "Model activation attempts by result (reloaded, rejected, failed).",
		}, []string{"result"}),
		stageWindow: newStageWindow(256),
	}
}

func (m *Metrics) ObserveJobEvent(event string) {
	if m == nil || m.JobEvents == nil {
		return
	}
	m.JobEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveSynthDuration(d time.Duration) {
	if m == nil || m.SynthDuration == nil {
		return
	}
	ms := float64(d.Milliseconds())
	m.SynthDuration.Observe(ms)
	m.stageWindow.Observe("synthesize_chunk", ms)
}

func (m *Metrics) ObservePostProcessDuration(d time.Duration) {
	if m == nil || m.PostProcessDuration == nil {
		return
	}
	ms := float64(d.Milliseconds())
	m.PostProcessDuration.Observe(ms)
	m.stageWindow.Observe("post_process", ms)
}

func (m *Metrics) ObserveWarmup(status string, d time.Duration) {
	if m == nil || m.WarmupRuns == nil {
		return
	}
	m.WarmupRuns.WithLabelValues(status).Inc()
	m.stageWindow.Observe("warmup", float64(d.Milliseconds()))
}

func (m *Metrics) ObserveActivation(result string) {
	if m == nil || m.ActivationEvents == nil {
		return
	}
	m.ActivationEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil || m.stageWindow == nil {
		return StageSnapshot{}
	}
	return m.stageWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
