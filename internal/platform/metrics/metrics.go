package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus 的 registry 不允许重复注册同名指标，否则会 panic。
	once sync.Once

	// HTTPRequestsTotal labels: method, route (路由模板，避免高基数), status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Registrations labels:
	// - source: custom | generated
	// - outcome: ok | naming_conflict | persistence | validation | allocation
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_registrations_total",
			Help: "Short link registration attempts by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	ShortlinkRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_redirects_total",
			Help: "Redirects served for known short links.",
		},
	)

	// UploadFiles outcome: ok | upload_slot | transfer | download_link | persistence | naming_conflict | other
	UploadFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_upload_files_total",
			Help: "Uploaded files by final outcome.",
		},
		[]string{"outcome"},
	)

	// GateWaitSeconds 记录上传流水线在写库闸门前的排队时间。
	GateWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shortlink_gate_wait_seconds",
			Help:    "Time spent waiting for the single-writer registration gate.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	HitsFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_hits_flushed_total",
			Help: "Redirect hits persisted by the stats consumers.",
		},
		[]string{"result"},
	)
)

// Init 注册指标：只允许注册一次
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			Registrations,
			ShortlinkRedirects,
			UploadFiles,
			GateWaitSeconds,
			HitsFlushed,
		)
	})
}
