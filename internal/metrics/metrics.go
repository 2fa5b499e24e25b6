// Package metrics exposes Prometheus collectors for job runs and the trigger
// server.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/grantwatch/internal/runlog"
)

var (
	jobRunsTotal               *prometheus.CounterVec
	jobDurationSeconds         *prometheus.HistogramVec
	jobItemsTotal              *prometheus.CounterVec
	jobLastSuccessTimestamp    *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		jobRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantwatch_job_runs_total",
				Help: "Total number of job runs, labeled by job and final status.",
			},
			[]string{"job", "status"},
		)

		jobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantwatch_job_duration_seconds",
				Help:    "Histogram of job run durations, labeled by job.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"job"},
		)

		jobItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantwatch_job_items_total",
				Help: "Items handled by job runs, labeled by job and outcome.",
			},
			[]string{"job", "outcome"},
		)

		jobLastSuccessTimestamp = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "grantwatch_job_last_success_timestamp_seconds",
				Help: "Unix time of the last successful or partial run, labeled by job.",
			},
			[]string{"job"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantwatch_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantwatch_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records one finished job run.
func ObserveRun(job string, s runlog.Summary, d time.Duration) {
	Init()
	status := string(s.Status)
	if status == "" {
		status = "unknown"
	}
	jobRunsTotal.WithLabelValues(job, status).Inc()
	jobDurationSeconds.WithLabelValues(job).Observe(d.Seconds())

	for outcome, n := range map[string]int{
		"processed": s.Processed,
		"inserted":  s.Inserted,
		"updated":   s.Updated,
		"skipped":   s.Skipped,
		"errors":    s.ErrorCount,
	} {
		if n > 0 {
			jobItemsTotal.WithLabelValues(job, outcome).Add(float64(n))
		}
	}

	if s.Status == runlog.StatusSuccess || s.Status == runlog.StatusPartial {
		jobLastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		ObserveHTTPRequest(r.Method, route, code, time.Since(start))
	})
}
