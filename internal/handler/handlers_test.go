package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apierrors "github.com/devrev/taskqueue/internal/errors"
	"github.com/devrev/taskqueue/internal/model"
	"github.com/devrev/taskqueue/internal/service"
)

var testNow = time.Unix(1_700_000_000, 0)

func setupHandlers(t *testing.T, maxSize int) (*Handlers, *service.QueueService) {
	t.Helper()
	logger := zap.NewNop()
	svc := service.NewQueueService(&service.QueueConfig{
		MaxSize: maxSize,
		Clock:   func() time.Time { return testNow },
	}, nil, logger)
	return NewHandlers(svc, apierrors.NewHandler(logger), logger), svc
}

func admitRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withID(req *http.Request, id string) *http.Request {
	return mux.SetURLVars(req, map[string]string{"id": id})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierrors.ErrorResponse {
	t.Helper()
	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAdmitTask(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   apierrors.ErrorCode
	}{
		{"valid", `{"id": 7, "enqueueTime": 1699999900}`, http.StatusCreated, ""},
		{"negative id", `{"id": -5, "enqueueTime": 1699999900}`, http.StatusBadRequest, apierrors.CodeNegativeID},
		{"future enqueue time", `{"id": 5, "enqueueTime": 1700000100}`, http.StatusBadRequest, apierrors.CodeInvalidEnqueueTime},
		{"missing id", `{"enqueueTime": 1699999900}`, http.StatusBadRequest, apierrors.CodeInvalidRequest},
		{"missing enqueue time", `{"id": 5}`, http.StatusBadRequest, apierrors.CodeInvalidRequest},
		{"malformed", `{"id": "five"`, http.StatusBadRequest, apierrors.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := setupHandlers(t, 10)
			w := httptest.NewRecorder()

			h.AdmitTask(w, admitRequest(tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).ErrorCode)
			}
		})
	}
}

func TestAdmitTask_ConflictAndCapacity(t *testing.T) {
	h, _ := setupHandlers(t, 1)

	w := httptest.NewRecorder()
	h.AdmitTask(w, admitRequest(`{"id": 1, "enqueueTime": 1699999900}`))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	h.AdmitTask(w, admitRequest(`{"id": 1, "enqueueTime": 1699999900}`))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apierrors.CodeIDAlreadyExists, decodeError(t, w).ErrorCode)

	w = httptest.NewRecorder()
	h.AdmitTask(w, admitRequest(`{"id": 2, "enqueueTime": 1699999900}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, apierrors.CodeQueueFull, decodeError(t, w).ErrorCode)
}

func TestPollTask(t *testing.T) {
	h, svc := setupHandlers(t, 10)

	w := httptest.NewRecorder()
	h.PollTask(w, httptest.NewRequest(http.MethodPost, "/v1/tasks/poll", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierrors.CodeQueueEmpty, decodeError(t, w).ErrorCode)

	require.NoError(t, svc.Admit(20, testNow.Unix()-200))
	require.NoError(t, svc.Admit(7, testNow.Unix()-200))

	w = httptest.NewRecorder()
	h.PollTask(w, httptest.NewRequest(http.MethodPost, "/v1/tasks/poll", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, float64(20), view["id"])
	assert.Equal(t, "VIP", view["taskClass"])
	assert.Equal(t, float64(200), view["secondsWaiting"])
	assert.InDelta(t, 2119.3, view["rank"], 0.1)
}

func TestListTasks(t *testing.T) {
	h, svc := setupHandlers(t, 10)
	for _, a := range []struct{ id, ago int64 }{{3, 100}, {9, 200}, {11, 100}, {7, 200}, {25, 100}, {20, 200}, {30, 1}} {
		require.NoError(t, svc.Admit(a.id, testNow.Unix()-a.ago))
	}

	w := httptest.NewRecorder()
	h.ListTasks(w, httptest.NewRequest(http.MethodGet, "/v1/tasks", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Count)

	got := make([]int64, len(resp.Tasks))
	for i, v := range resp.Tasks {
		got[i] = v.ID
	}
	assert.Equal(t, []int64{30, 20, 9, 25, 3, 7, 11}, got)
	assert.Equal(t, model.TaskClassManagementOverride, resp.Tasks[0].TaskClass)
	assert.Equal(t, float64(1), resp.Tasks[0].Rank)
}

func TestListTasks_Empty(t *testing.T) {
	h, _ := setupHandlers(t, 10)

	w := httptest.NewRecorder()
	h.ListTasks(w, httptest.NewRequest(http.MethodGet, "/v1/tasks", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tasks": [], "count": 0}`, w.Body.String())
}

func TestGetPositionAndDelete(t *testing.T) {
	h, svc := setupHandlers(t, 10)
	require.NoError(t, svc.Admit(5, testNow.Unix()))

	w := httptest.NewRecorder()
	h.GetPosition(w, withID(httptest.NewRequest(http.MethodGet, "/v1/tasks/5/position", nil), "5"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": 5, "position": 0}`, w.Body.String())

	w = httptest.NewRecorder()
	h.DeleteTask(w, withID(httptest.NewRequest(http.MethodDelete, "/v1/tasks/5", nil), "5"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.GetPosition(w, withID(httptest.NewRequest(http.MethodGet, "/v1/tasks/5/position", nil), "5"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierrors.CodeTaskNotFound, decodeError(t, w).ErrorCode)

	w = httptest.NewRecorder()
	h.DeleteTask(w, withID(httptest.NewRequest(http.MethodDelete, "/v1/tasks/5", nil), "5"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPathID_Invalid(t *testing.T) {
	h, _ := setupHandlers(t, 10)

	w := httptest.NewRecorder()
	h.GetPosition(w, withID(httptest.NewRequest(http.MethodGet, "/v1/tasks/abc/position", nil), "abc"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.DeleteTask(w, withID(httptest.NewRequest(http.MethodDelete, "/v1/tasks/abc", nil), "abc"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetWaitTime(t *testing.T) {
	h, svc := setupHandlers(t, 10)

	w := httptest.NewRecorder()
	h.GetWaitTime(w, httptest.NewRequest(http.MethodGet, "/v1/stats/wait-time", nil))
	assert.JSONEq(t, `{"expectedWaitTimeSeconds": 0, "size": 0}`, w.Body.String())

	require.NoError(t, svc.Admit(1, testNow.Unix()-100))

	w = httptest.NewRecorder()
	h.GetWaitTime(w, httptest.NewRequest(http.MethodGet, "/v1/stats/wait-time", nil))
	assert.JSONEq(t, `{"expectedWaitTimeSeconds": 100, "size": 1}`, w.Body.String())
}

func TestLegacyRoutes(t *testing.T) {
	h, _ := setupHandlers(t, 10)

	w := httptest.NewRecorder()
	h.LegacyNewTask(w, httptest.NewRequest(http.MethodPost, "/newtask", strings.NewReader(`{"id": 9, "enqueueTime": 1699999800}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.LegacyNewTask(w, httptest.NewRequest(http.MethodPost, "/newtask", strings.NewReader(`{"id": 9, "enqueueTime": 1699999800}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.CodeIDAlreadyExists, decodeError(t, w).ErrorCode)

	w = httptest.NewRecorder()
	h.LegacyPosition(w, withID(httptest.NewRequest(http.MethodGet, "/position/9", nil), "9"))
	assert.JSONEq(t, `{"position": 0}`, w.Body.String())

	w = httptest.NewRecorder()
	h.LegacyListIDs(w, httptest.NewRequest(http.MethodGet, "/listIds", nil))
	var views []TaskView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, int64(9), views[0].ID)
}

func TestHello(t *testing.T) {
	h, _ := setupHandlers(t, 10)

	w := httptest.NewRecorder()
	h.Hello(w, httptest.NewRequest(http.MethodGet, "/hello", nil))
	assert.Equal(t, "Hello World!", w.Body.String())

	w = httptest.NewRecorder()
	h.Hello(w, httptest.NewRequest(http.MethodGet, "/hello?myName=Ada", nil))
	assert.Equal(t, "Hello Ada!", w.Body.String())
}
