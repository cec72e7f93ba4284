// Package telemetry exposes the process's own operational counters over the
// standard Prometheus registry.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geomon_rows_written_total",
			Help: "Total number of metric value rows upserted",
		},
	)

	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geomon_job_duration_seconds",
			Help:    "Duration of batch jobs by job name",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)

	NotificationsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geomon_notifications_sent_total",
			Help: "Total number of notification dispatches attempted",
		},
	)

	CollectErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomon_collect_errors_total",
			Help: "Total number of failed collection cycles by service",
		},
		[]string{"service"},
	)
)

// ObserveJob records one batch job run.
func ObserveJob(job string, start time.Time) {
	JobDurationSeconds.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
