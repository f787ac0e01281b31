// Package metrics provides Prometheus metrics for the task queue.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devrev/taskqueue/internal/errors"
	"github.com/devrev/taskqueue/internal/model"
)

const namespace = "taskqueue"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	admissionsTotal  *prometheus.CounterVec
	pollsTotal       *prometheus.CounterVec
	deletesTotal     *prometheus.CounterVec
	inconsistencies  *prometheus.CounterVec
	queueSize        prometheus.Gauge
	queueSizeByClass *prometheus.GaugeVec
	expectedWait     prometheus.Gauge
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	healthStatus     prometheus.Gauge
}

// NewMetrics creates the queue metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		admissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Total number of admission attempts by outcome and task class",
			},
			[]string{"outcome", "class"},
		),
		pollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Total number of polls by dequeued task class, or empty",
			},
			[]string{"class"},
		),
		deletesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletes_total",
				Help:      "Total number of deletes by outcome",
			},
			[]string{"outcome"},
		),
		inconsistencies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_inconsistencies_total",
				Help:      "Identity and rank index divergences detected, by operation",
			},
			[]string{"operation"},
		),
		queueSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "size",
				Help:      "Number of resident tasks",
			},
		),
		queueSizeByClass: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "size_by_class",
				Help:      "Number of resident tasks per class",
			},
			[]string{"class"},
		),
		expectedWait: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "expected_wait_seconds",
				Help:      "Mean age of resident tasks in seconds",
			},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		healthStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "health_status",
				Help:      "Readiness of the task queue (1 = ready, 0 = not ready)",
			},
		),
	}
}

// RecordAdmission counts an admission attempt.
func (m *Metrics) RecordAdmission(code errors.ErrorCode, class model.TaskClass) {
	m.admissionsTotal.WithLabelValues(string(code), class.String()).Inc()
}

// RecordPoll counts a poll; found is false when the queue was empty.
func (m *Metrics) RecordPoll(class model.TaskClass, found bool) {
	label := "empty"
	if found {
		label = class.String()
	}
	m.pollsTotal.WithLabelValues(label).Inc()
}

// RecordDelete counts a delete by outcome.
func (m *Metrics) RecordDelete(code errors.ErrorCode) {
	m.deletesTotal.WithLabelValues(string(code)).Inc()
}

// RecordInconsistency counts a detected index divergence.
func (m *Metrics) RecordInconsistency(op string) {
	m.inconsistencies.WithLabelValues(op).Inc()
}

// SetOccupancy updates the size gauges.
func (m *Metrics) SetOccupancy(byClass [model.NumTaskClasses]int) {
	total := 0
	for class, n := range byClass {
		m.queueSizeByClass.WithLabelValues(model.TaskClass(class).String()).Set(float64(n))
		total += n
	}
	m.queueSize.Set(float64(total))
}

// UpdateQueueStats refreshes every queue gauge from a snapshot.
func (m *Metrics) UpdateQueueStats(stats model.QueueStats) {
	m.SetOccupancy(stats.ByClass)
	m.expectedWait.Set(stats.ExpectedWaitTime.Seconds())
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetHealthStatus sets the health status.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// MetricsMiddleware creates middleware that records HTTP metrics. Requests
// are labelled by their mux route template so path parameters do not
// create new series. When mounted outside the router, pass it as router so
// the template can still be resolved.
func MetricsMiddleware(m *Metrics, router *mux.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, routeLabel(r, router), rw.statusCode, time.Since(start))
		})
	}
}

func routeLabel(r *http.Request, router *mux.Router) string {
	route := mux.CurrentRoute(r)
	if route == nil && router != nil {
		var match mux.RouteMatch
		if router.Match(r, &match) {
			route = match.Route
		}
	}
	if route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a metrics server exposing gatherer on path.
func NewMetricsServer(port int, path string, gatherer prometheus.Gatherer, logger *zap.Logger) *MetricsServer {
	serveMux := http.NewServeMux()
	serveMux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      serveMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server. It blocks until the server stops.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// Handler returns the metrics HTTP handler.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}
