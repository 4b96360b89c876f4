package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apiaudit_http_request_duration_seconds",
		Help:    "HTTP request latency by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiaudit_http_requests_total",
		Help: "HTTP requests by route template and status class",
	}, []string{"route", "class"})

	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiaudit_records_total",
		Help: "Audit records persisted, by outcome status",
	}, []string{"status"})

	SuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiaudit_suppressed_total",
		Help: "Calls that passed through without an audit record",
	}, []string{"reason"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apiaudit_rate_limited_total",
		Help: "Calls rejected by the per-user rate limiter",
	})

	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiaudit_pipeline_errors_total",
		Help: "Swallowed audit-path failures",
	}, []string{"stage"})

	ArchiveBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiaudit_archive_batches_total",
		Help: "Archive batch runs",
	}, []string{"mode", "result"})

	ArchivedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apiaudit_archived_records_total",
		Help: "Records retired into archive blobs",
	})

	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiaudit_alert_checks_total",
		Help: "Failure-spike monitor results",
	}, []string{"result"})
)
