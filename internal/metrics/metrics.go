// Package metrics exposes Prometheus collectors for sync runs and pushes
// per-run gauges to a Pushgateway.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
)

var (
	syncRunsTotal           *prometheus.CounterVec
	syncDurationSeconds     *prometheus.HistogramVec
	anomaliesDetected       *prometheus.GaugeVec
	urlsInspectedTotal      *prometheus.CounterVec
	issuesOpenedTotal       *prometheus.CounterVec
	issuesResolvedTotal     *prometheus.CounterVec
	inspectionAPICallsTotal *prometheus.CounterVec
	inspectionErrorsTotal   *prometheus.CounterVec
	rateLimitedTotal        *prometheus.CounterVec
	lastSyncTimestamp       *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the process-wide collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seomon_sync_runs_total",
				Help: "Total number of sync runs, labeled by business and status.",
			},
			[]string{"business", "status"},
		)

		syncDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seomon_sync_duration_seconds",
				Help:    "Histogram of sync run durations.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"business"},
		)

		anomaliesDetected = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "seomon_anomalies_detected",
				Help: "Candidates detected in the last run, labeled by reason.",
			},
			[]string{"business", "reason"},
		)

		urlsInspectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seomon_urls_inspected_total",
				Help: "Total number of URLs inspected.",
			},
			[]string{"business"},
		)

		issuesOpenedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seomon_issues_opened_total",
				Help: "Total number of issues opened or reopened.",
			},
			[]string{"business"},
		)

		issuesResolvedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seomon_issues_resolved_total",
				Help: "Total number of issues auto-resolved.",
			},
			[]string{"business"},
		)

		inspectionAPICallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seomon_inspection_api_calls_total",
				Help: "Total number of URL inspection API calls.",
			},
			[]string{"business"},
		)

		inspectionErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seomon_inspection_errors_total",
				Help: "Total number of failed inspections.",
			},
			[]string{"business"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seomon_rate_limited_runs_total",
				Help: "Total number of runs cut short by the inspection quota.",
			},
			[]string{"business"},
		)

		lastSyncTimestamp = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "seomon_last_sync_timestamp_seconds",
				Help: "Unix time of the last sync run, labeled by status.",
			},
			[]string{"business", "status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSync updates the process-wide collectors from a finished run.
func RecordSync(e *model.SyncLogEntry) {
	Init()
	b := e.Business

	syncRunsTotal.WithLabelValues(b, string(e.Status)).Inc()
	syncDurationSeconds.WithLabelValues(b).Observe(float64(e.DurationMS) / 1000)
	for _, r := range model.AllReasons() {
		anomaliesDetected.WithLabelValues(b, string(r)).Set(float64(e.AnomaliesByReason[r]))
	}
	urlsInspectedTotal.WithLabelValues(b).Add(float64(e.URLsInspected))
	issuesOpenedTotal.WithLabelValues(b).Add(float64(e.NewIssuesFound))
	issuesResolvedTotal.WithLabelValues(b).Add(float64(e.IssuesResolved))
	inspectionAPICallsTotal.WithLabelValues(b).Add(float64(e.APICallsUsed))
	inspectionErrorsTotal.WithLabelValues(b).Add(float64(e.InspectErrors))
	if e.RateLimited {
		rateLimitedTotal.WithLabelValues(b).Inc()
	}
	lastSyncTimestamp.WithLabelValues(b, string(e.Status)).Set(float64(e.StartedAt.Unix()))
}

// RunGauges builds a registry holding one gauge per run counter. Batch
// jobs push this snapshot rather than the process-wide counters.
func RunGauges(e *model.SyncLogEntry) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	gauge := func(name, help string, v float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		g.Set(v)
		reg.MustRegister(g)
	}

	success := 0.0
	if e.Status == model.SyncStatusCompleted {
		success = 1
	}
	rateLimited := 0.0
	if e.RateLimited {
		rateLimited = 1
	}

	gauge("seomon_run_success", "1 if the last run completed.", success)
	gauge("seomon_run_duration_seconds", "Duration of the last run.", float64(e.DurationMS)/1000)
	gauge("seomon_run_pages_synced", "Pages synced by the last run.", float64(e.PagesSynced))
	gauge("seomon_run_anomalies_detected", "Candidates detected by the last run.", float64(e.AnomaliesDetected))
	gauge("seomon_run_urls_inspected", "URLs inspected by the last run.", float64(e.URLsInspected))
	gauge("seomon_run_new_issues", "Issues opened by the last run.", float64(e.NewIssuesFound))
	gauge("seomon_run_issues_resolved", "Issues resolved by the last run.", float64(e.IssuesResolved))
	gauge("seomon_run_api_calls", "Inspection API calls made by the last run.", float64(e.APICallsUsed))
	gauge("seomon_run_rate_limited", "1 if the last run hit the inspection quota.", rateLimited)
	gauge("seomon_run_last_timestamp_seconds", "Unix time the last run started.", float64(e.StartedAt.Unix()))
	return reg
}

// Push sends the run gauges to the configured Pushgateway. It is a no-op
// when no gateway is configured.
func Push(ctx context.Context, cfg config.MetricsConfig, e *model.SyncLogEntry) error {
	if cfg.PushgatewayURL == "" {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = "seo_monitor_sync"
	}
	err := push.New(cfg.PushgatewayURL, job).
		Gatherer(RunGauges(e)).
		Grouping("business", e.Business).
		PushContext(ctx)
	return eris.Wrap(err, "metrics: push to gateway")
}
