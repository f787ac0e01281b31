package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/taskqueue/internal/errors"
	"github.com/devrev/taskqueue/internal/model"
)

func TestMetrics_QueueOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAdmission(errors.CodeOK, model.TaskClassVIP)
	m.RecordAdmission(errors.CodeOK, model.TaskClassVIP)
	m.RecordAdmission(errors.CodeQueueFull, model.TaskClassNormal)
	m.RecordPoll(model.TaskClassVIP, true)
	m.RecordPoll(0, false)
	m.RecordDelete(errors.CodeTaskNotFound)
	m.RecordInconsistency("admit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.admissionsTotal.WithLabelValues("OK", "VIP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admissionsTotal.WithLabelValues("QUEUE_FULL", "NORMAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollsTotal.WithLabelValues("VIP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollsTotal.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletesTotal.WithLabelValues("TASK_NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inconsistencies.WithLabelValues("admit")))
}

func TestMetrics_UpdateQueueStats(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.UpdateQueueStats(model.QueueStats{
		Size:             6,
		MaxSize:          1000,
		ExpectedWaitTime: 42 * time.Second,
		ByClass:          [model.NumTaskClasses]int{3, 2, 1, 0},
	})

	assert.Equal(t, 6.0, testutil.ToFloat64(m.queueSize))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.expectedWait))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueSizeByClass.WithLabelValues("NORMAL")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queueSizeByClass.WithLabelValues("MANAGEMENT_OVERRIDE")))
}

func TestMetrics_SetHealthStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetHealthStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.healthStatus))
	m.SetHealthStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.healthStatus))
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(MetricsMiddleware(m, nil))
	router.HandleFunc("/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodDelete)

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodDelete, "/v1/tasks/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("DELETE", "/v1/tasks/{id}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestsInFlight))
}

func TestMetricsMiddleware_WrappingRouter(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.HandleFunc("/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodDelete)
	handler := MetricsMiddleware(m, router)(router)

	for _, path := range []string{"/v1/tasks/1", "/v1/tasks/2", "/v2/unknown"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("DELETE", "/v1/tasks/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("DELETE", "unmatched", "404")))
}

func TestMetricsServer_ExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetOccupancy([model.NumTaskClasses]int{1, 0, 0, 0})

	ms := NewMetricsServer(0, "/metrics", reg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ms.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "taskqueue_size 1"), body)
	assert.Contains(t, body, `taskqueue_size_by_class{class="NORMAL"} 1`)
}
