package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Bulk dispatch
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_whatsapp_sends_total",
			Help: "Terminal per-recipient send outcomes",
		},
		[]string{"status"},
	)
	SendAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_whatsapp_send_attempts_total",
			Help: "Provider send attempts including retries",
		},
	)
	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_bulk_job_transitions_total",
			Help: "Bulk job state transitions",
		},
		[]string{"status"},
	)
	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_bulk_jobs_running",
			Help: "Bulk jobs currently executing",
		},
	)

	// Assignment
	AssignmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_lead_assignments_total",
			Help: "Leads assigned to agents",
		},
	)
	AssignmentSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_lead_assignment_skips_total",
			Help: "Leads left unassigned by a batch",
		},
		[]string{"reason"},
	)

	// Template cache
	TemplateCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_template_cache_hits_total",
			Help: "Template catalog cache hits",
		},
	)
	TemplateCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_template_cache_misses_total",
			Help: "Template catalog cache misses",
		},
	)
	TemplateRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_template_refreshes_total",
			Help: "Template catalog refreshes from the provider",
		},
	)

	// Snapshots
	SnapshotRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_snapshot_rows_total",
			Help: "Daily followup snapshot rows by result",
		},
		[]string{"result"},
	)
)
