package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup metrics
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_snapshots_total",
			Help: "Total number of backup snapshots attempted",
		},
		[]string{"result"}, // "success", "failure"
	)

	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_records_read_total",
			Help: "Total number of records read from the backing store",
		},
		[]string{"kind"},
	)

	ReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backup_read_duration_seconds",
			Help:    "Duration of a full entity read in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Restore metrics
	RestoreRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restore_records_total",
			Help: "Total number of records processed by restore",
		},
		[]string{"kind", "result"}, // "restored", "failed"
	)

	RestoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "restore_duration_seconds",
			Help:    "Duration of restore runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	RestoreRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restore_runs_total",
			Help: "Total number of restore runs",
		},
		[]string{"result"}, // "success", "partial", "rejected"
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// Middleware records request count and latency per route template
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
